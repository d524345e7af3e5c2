package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local archives files into a directory on disk. The file ID is its
// archive-relative name.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

var _ Storage = (*Local)(nil)

func (l *Local) UploadFile(ctx context.Context, localPath, name, mime string) (Stored, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return Stored{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	dstPath := filepath.Join(l.dir, filepath.Base(name))
	dst, err := os.Create(dstPath)
	if err != nil {
		return Stored{}, fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return Stored{}, fmt.Errorf("copy to archive: %w", err)
	}
	return Stored{URL: "file://" + dstPath, ID: filepath.Base(name)}, nil
}

func (l *Local) DeleteFile(ctx context.Context, id string) error {
	err := os.Remove(filepath.Join(l.dir, filepath.Base(id)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
