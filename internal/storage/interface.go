package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no content exists at a path
var ErrNotFound = errors.New("not found")

// BlobStorage defines the interface for durable artifact storage
type BlobStorage interface {
	// Store saves content at the given path, creating parent directories
	Store(ctx context.Context, path string, content io.Reader, contentType string) error

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path; ErrNotFound if absent
	Delete(ctx context.Context, path string) error

	// Exists checks if content exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// PruneEmptyParents removes up to levels now-empty ancestor directories of
	// path, nearest first, stopping at the first one that cannot be removed
	PruneEmptyParents(ctx context.Context, path string, levels int) (int, error)
}
