// Package content issues short codes for shared text and files and
// resolves them back while they are live.
package content

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when no live record holds the code.
	ErrNotFound = errors.New("content not found")
	// ErrNotAFile is returned when a blob is requested for a text record.
	ErrNotAFile = errors.New("content is not a file")
	// ErrBlobNotFound is returned when a file record's blob is gone.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrCodeTaken is returned by a Repository when a live record already holds the code.
	ErrCodeTaken = errors.New("code already in use")
	// ErrCodeSpaceExhausted is returned when no free code was found.
	ErrCodeSpaceExhausted = errors.New("no free code available")
)

// Repository persists records. Reads only ever see records live at now.
type Repository interface {
	// Create inserts the record. It replaces an expired text record holding
	// the same code and fails with ErrCodeTaken if a live record or an
	// expired file record holds it. Expired file records are only removed by
	// DeleteExpired, so their blobs are always handed back for deletion.
	Create(ctx context.Context, rec *Record) error

	// FindByCode returns the live record for code or ErrNotFound.
	FindByCode(ctx context.Context, code string, now time.Time) (*Record, error)

	// Exists reports whether Create would refuse code: a live record or an
	// expired file record holds it.
	Exists(ctx context.Context, code string, now time.Time) (bool, error)

	// DeleteAll removes every record and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	// DeleteExpired removes records that expired at or before now and
	// returns them.
	DeleteExpired(ctx context.Context, now time.Time) ([]*Record, error)
}

// Blob is an open blob ready for streaming.
type Blob struct {
	io.ReadSeekCloser
	Name    string
	Size    int64
	ModTime time.Time
}

// BlobStorage stores file payloads under flat names.
type BlobStorage interface {
	// Save writes content under name and returns the number of bytes written.
	Save(name string, content io.Reader) (int64, error)

	// Open returns the blob stored under ref or ErrBlobNotFound.
	Open(ref string) (*Blob, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ref string) error

	// List returns the names of all stored blobs.
	List() ([]string, error)
}
