package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Storage defines the interface for blob storage operations.
// Paths are slash separated and relative to the storage root.
type Storage interface {
	// Save stores a blob at the given path
	Save(ctx context.Context, path string, r io.Reader) error

	// Open returns a reader for the blob. Local blobs also implement io.Seeker.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Move renames a blob, creating parent directories as needed
	Move(ctx context.Context, from, to string) error

	// Delete removes a blob. Missing blobs yield ErrNotFound where the backend can tell.
	Delete(ctx context.Context, path string) error

	// URL returns a URL clients can fetch the blob from
	URL(ctx context.Context, path string) (string, error)
}

// CleanPath normalizes p and rejects anything that could escape the storage root.
func CleanPath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, '\\') || strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	if path.IsAbs(p) {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == "/" {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
