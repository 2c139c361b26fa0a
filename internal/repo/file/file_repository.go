package file

import (
	"context"

	"github.com/mkrupp/homecase-filevault/internal/domain"
)

// Repository is the ownership ledger: it persists which user owns which
// file and where its content lives.
type Repository interface {
	// Create records a new file and returns its id.
	// Fails if ownerID does not reference an existing user.
	Create(ctx context.Context, filename, storagePath string, ownerID domain.UserID, size int64) (domain.FileID, error)

	// Get returns the record with the given id, or ErrFileNotFound.
	Get(ctx context.Context, id domain.FileID) (*domain.FileRecord, error)

	// ListByOwner returns all records of one owner in insertion order.
	ListByOwner(ctx context.Context, ownerID domain.UserID) ([]domain.FileRecord, error)

	// Delete removes the record with the given id.
	// Returns ErrFileNotFound if there is no such record.
	Delete(ctx context.Context, id domain.FileID) error
}
