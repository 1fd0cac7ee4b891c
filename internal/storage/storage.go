// Package storage uploads user files to durable object storage and hands
// back a public URL for them.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrObjectExists   = errors.New("object already exists")
	ErrObjectNotFound = errors.New("object not found")
)

type UploadOptions struct {
	Overwrite bool
}

type UploadResult struct {
	Path      string
	PublicURL string
}

type ObjectStore interface {
	Upload(ctx context.Context, path string, body io.Reader, size int64, contentType string, opts UploadOptions) (UploadResult, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	// PathFromURL reports whether url was issued by this store and, if so,
	// the object path behind it.
	PathFromURL(url string) (string, bool)
}
