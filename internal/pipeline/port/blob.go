package port

import (
	"context"
	"time"
)

//go:generate mockgen -destination=../service/mocks/blob_store_mock.go -package=mocks -source=blob.go

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

// PutOptions controls how an object is written.
type PutOptions struct {
	ContentType  string
	CacheControl string
	// Overwrite replaces an existing object. When false an existing object
	// makes Put fail with ErrObjectExists.
	Overwrite bool
}

// BlobStore is path-addressed object storage.
type BlobStore interface {
	// Put stores data at bucket/key.
	Put(ctx context.Context, bucket, key string, data []byte, opts PutOptions) error

	// Get reads the object at bucket/key. Missing objects return ErrObjectNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// List returns every object whose key starts with prefix, sorted by key.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// ListFolders returns the folder prefixes directly below prefix, each ending in "/".
	ListFolders(ctx context.Context, bucket, prefix string) ([]string, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, bucket string, keys []string) error

	// SignedURL issues a time-limited download URL for bucket/key.
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
