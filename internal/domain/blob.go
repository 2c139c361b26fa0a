package domain

import (
	"io"
	"time"
)

// Blob is an opened piece of stored content. The caller must Close it.
type Blob struct {
	io.ReadSeekCloser

	Size    int64
	ModTime time.Time
}
