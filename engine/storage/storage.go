// Package storage moves processed source documents to long-term storage.
// The pipeline uses it opportunistically after a quiz completes; failures
// leave the local file in place and are logged, never fatal.
package storage

import "context"

// Stored identifies an archived file.
type Stored struct {
	URL string
	ID  string
}

// Storage is the archive backend.
type Storage interface {
	UploadFile(ctx context.Context, localPath, name, mime string) (Stored, error)
	DeleteFile(ctx context.Context, id string) error
}
