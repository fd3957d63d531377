package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes an object in blob storage.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	// Put uploads data to the given path with the given content type.
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves archived objects from blob storage.
type BlobReader interface {
	// Get returns the body of the object at path. The caller must close the
	// returned reader. Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// List returns metadata for all objects under the given key prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// Archiver moves aged transaction records out of the primary store into
// long-term blob storage.
type Archiver interface {
	// ArchiveTransactions uploads every transaction recorded strictly before
	// the cutoff and removes the uploaded records from the primary store.
	// Returns the number of records archived.
	ArchiveTransactions(ctx context.Context, before time.Time) (int64, error)
}
