// Package filestore defines the interface for the object storage that holds
// database backup archives.
//
// Providers implement Store; callers depend only on this package:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	objects, err := store.ListObjects(ctx, "dac-backups", filestore.ListOptions{Recursive: true})
package filestore

import (
	"context"
	"time"
)

// Store is the read-only interface all storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// ListObjects returns the objects in bucket that match opts.
	// Virtual directory entries are included when opts.Recursive is false.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// PresignGetURL returns a time-limited URL that downloads the object at
	// key inside bucket without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "nightly/dac_20240101.zip").
	Key string

	// Size is the byte size of the object.
	Size int64

	ContentType string
	ETag        string

	// LastModified is when the object was last written.
	LastModified time.Time

	// IsDir is true for a virtual directory (common prefix).
	IsDir bool
}

// ListOptions controls how ListObjects filters results.
type ListOptions struct {
	// Prefix restricts results to keys starting with this string.
	Prefix string

	// Recursive lists every object under Prefix instead of grouping by
	// virtual directories.
	Recursive bool

	// Limit caps the number of results. 0 means no cap.
	Limit int

	// StartAfter resumes a listing after this key.
	StartAfter string
}
