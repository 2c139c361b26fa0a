package domain

import "errors"

var (
	// ErrEmptyFilename is returned when an upload carries no filename.
	ErrEmptyFilename = errors.New("empty filename")
	// ErrInvalidName is returned when a filename sanitizes to nothing, or a
	// storage path resolves outside the storage root.
	ErrInvalidName = errors.New("invalid name")
	// ErrNameCollision is returned when a blob would overwrite an existing one.
	ErrNameCollision = errors.New("name collision")
	// ErrFileNotFound is returned when the ledger has no record for a file id.
	ErrFileNotFound = errors.New("file not found")
	// ErrMissingBlob is returned when a file record exists but its content is gone.
	ErrMissingBlob = errors.New("missing blob")
	// ErrBlobNotFound is returned by the blob store for an absent storage path.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrFileTooLarge is returned when an upload exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrIOFailure wraps any other storage fault.
	ErrIOFailure = errors.New("io failure")
)

// FileID identifies a file record in the ledger.
type FileID int64

// FileRecord binds an uploaded file to its owner and its on-disk location.
type FileRecord struct {
	ID          FileID `db:"id"           json:"id"`
	Filename    string `db:"filename"     json:"filename"`
	StoragePath string `db:"storage_path" json:"-"`
	OwnerID     UserID `db:"owner_id"     json:"-"`
	Size        int64  `db:"size"         json:"size"`
	CreatedAt   int64  `db:"created_at"   json:"createdAt"`
}

// FileIDResponse is returned after a successful upload.
type FileIDResponse struct {
	ID       FileID `json:"id"`
	Filename string `json:"filename"`
}
