package filesvc

import (
	"context"
	"io"

	"github.com/mkrupp/homecase-filevault/internal/domain"
)

// Download describes a file that passed the ownership check and may be sent
// to its owner as an attachment.
type Download struct {
	ID          domain.FileID
	Filename    string
	StoragePath string
	Size        int64
}

// View is a Download plus the content type for inline display.
type View struct {
	Download

	MIMEType string
}

// FileService defines the access-controlled operations on stored files.
// Every method that takes an ownerID only acts on files owned by that user.
type FileService interface {
	// Upload stores the content of r under a sanitized form of rawFilename
	// and records it as owned by ownerID.
	// Returns ErrEmptyFilename, ErrInvalidName, ErrFileTooLarge or ErrIOFailure.
	Upload(ctx context.Context, ownerID domain.UserID, rawFilename string, r io.Reader) (*domain.FileRecord, error)

	// List returns the owner's files in upload order. Never touches the filesystem.
	List(ctx context.Context, ownerID domain.UserID) ([]domain.FileRecord, error)

	// PrepareDownload checks ownership and blob presence.
	// Returns ErrFileNotFound, ErrUnauthorized or ErrMissingBlob.
	PrepareDownload(ctx context.Context, ownerID domain.UserID, fileID domain.FileID) (*Download, error)

	// PrepareView is PrepareDownload plus MIME type resolution.
	PrepareView(ctx context.Context, ownerID domain.UserID, fileID domain.FileID) (*View, error)

	// Open opens the content of a prepared download for streaming.
	// The caller must close the returned blob.
	Open(ctx context.Context, download *Download) (*domain.Blob, error)

	// Delete removes the owner's file: first its blob, then its record.
	// Returns ErrFileNotFound or ErrUnauthorized.
	Delete(ctx context.Context, ownerID domain.UserID, fileID domain.FileID) error

	// MaxSize returns the maximum allowed upload size in bytes.
	MaxSize() int64
}
