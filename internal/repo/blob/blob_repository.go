package blob

import (
	"context"
	"io"

	"github.com/mkrupp/homecase-filevault/internal/domain"
)

// Repository defines the interface for blob storage operations.
// Storage paths are relative to the repository root and never leave it.
type Repository interface {
	// Save writes the content of r under a new storage path derived from the
	// owner and the sanitized name, and returns that path and the byte count.
	// A maxSize > 0 limits the content size (ErrFileTooLarge).
	// An existing blob is never overwritten (ErrNameCollision).
	Save(ctx context.Context, ownerID domain.UserID, safeName string, r io.Reader, maxSize int64) (string, int64, error)

	// Open opens the blob at storagePath for reading.
	// Returns ErrBlobNotFound if it does not exist.
	Open(ctx context.Context, storagePath string) (*domain.Blob, error)

	// Exists reports whether a blob exists at storagePath.
	Exists(ctx context.Context, storagePath string) (bool, error)

	// Delete removes the blob at storagePath. Deleting an absent blob is not an error.
	Delete(ctx context.Context, storagePath string) error

	// ResolveMIME returns a best-effort content type for the blob,
	// "application/octet-stream" if nothing better is known.
	ResolveMIME(ctx context.Context, storagePath string) string
}
