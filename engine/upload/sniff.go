package upload

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// sniffLen is how many leading bytes are read for magic detection.
const sniffLen = 512

var (
	magicPDF = []byte("%PDF-")
	magicZIP = []byte("PK\x03\x04")
	magicOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	magicRTF = []byte(`{\rtf`)
)

// DetectType infers the document type from the file's magic bytes,
// cross-checked against its extension. Legacy .doc, .rtf and .odt fall
// into the text-like bucket; the parser reads them best-effort.
func DetectType(path, originalName string) (domain.DocumentType, error) {
	head, err := readHead(path)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(originalName))

	switch {
	case bytes.HasPrefix(head, magicPDF):
		if ext != ".pdf" {
			return "", mismatch(ext, "pdf")
		}
		return domain.DocPDF, nil

	case bytes.HasPrefix(head, magicZIP):
		switch ext {
		case ".docx":
			return domain.DocDOCX, nil
		case ".odt":
			return domain.DocText, nil
		}
		return "", mismatch(ext, "zip container")

	case bytes.HasPrefix(head, magicOLE):
		if ext != ".doc" {
			return "", mismatch(ext, "ole container")
		}
		return domain.DocText, nil

	case bytes.HasPrefix(head, magicRTF):
		if ext != ".rtf" {
			return "", mismatch(ext, "rtf")
		}
		return domain.DocText, nil

	case ext == ".txt" && looksLikeText(head):
		return domain.DocText, nil
	}

	return "", domain.NewAppError(domain.KindBadRequest, "unrecognized file content "+ext, domain.ErrUnsupportedFormat)
}

func mismatch(ext, magic string) error {
	return domain.NewAppError(domain.KindBadRequest,
		fmt.Sprintf("extension %s does not match %s content", ext, magic),
		domain.ErrUnsupportedFormat)
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if n == 0 && err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return head[:n], nil
}

// looksLikeText accepts UTF-8 content without NUL bytes. The tail may cut
// a multi-byte rune, so only complete prefixes are checked.
func looksLikeText(head []byte) bool {
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	for len(head) > 0 && !utf8.Valid(head) {
		head = head[:len(head)-1]
		if len(head) < sniffLen-utf8.UTFMax {
			return false
		}
	}
	return true
}
