// Package blobstore keeps photo bytes and thumbnails outside the database and
// hands clients short-lived signed URLs to fetch them.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that would resolve outside the store.
var ErrInvalidKey = errors.New("invalid object key")

// Store persists objects by key.
type Store interface {
	// Put writes size bytes from r under key and returns the stored key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// Get opens the object under key and returns its content type.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	Delete(ctx context.Context, key string) error

	// SignedURL returns a URL that serves the object until ttl elapses.
	SignedURL(key string, ttl time.Duration) (string, error)
}
