package store

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mkessler/quern/internal/store ContentStore

// FileInfo is the subset of file metadata the pool layer cares about.
type FileInfo struct {
	ModTime time.Time
	Size    int64
}

// ContentStore is the host content boundary. The dispatcher and workers
// treat it purely as a snapshot source; worker code never calls it.
type ContentStore interface {
	// Read returns the full text content of a file.
	Read(ctx context.Context, path string) (string, error)
	// List returns the relative paths under dir (or the whole root when dir
	// is empty), sorted.
	List(ctx context.Context, dir string) ([]string, error)
	// Stat returns metadata for one file.
	Stat(ctx context.Context, path string) (FileInfo, error)
}
