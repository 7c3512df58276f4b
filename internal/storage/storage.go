// Package storage abstracts the object store that holds loadable
// datasets. Callers reference objects by bucket-relative key; the s3
// subpackage provides the MinIO-backed implementation.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound reports a key with no object behind it.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey reports a key rejected before any backend call is made.
var ErrInvalidKey = errors.New("invalid object key")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore is the surface dataset fetching, demo seeding and the
// readiness probe need.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
