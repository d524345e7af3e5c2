// Package hashutil computes streaming MD5 content hashes used for upload
// deduplication and semantic-cache keys. The hashes are identity keys, not
// cryptographic protection.
package hashutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashFile returns the hex MD5 of the file at path, streaming the contents
// so memory stays bounded regardless of file size.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashutil: open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashutil: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashString returns the hex MD5 of s.
func HashString(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
