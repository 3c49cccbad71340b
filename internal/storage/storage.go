// Package storage keeps the scratch files a job works on and, when a bucket
// is configured, publishes finished outputs.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for scratch files and published outputs.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename; its extension
	// is kept so tools that dispatch on it still work.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish stores data under key and returns its public URL.
	// Returns ErrPublishNotConfigured if no bucket is configured.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
