package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Delete(ctx context.Context, path string) error
}

// ContentStore stores token images and metadata documents and returns the URI
// to embed in a mint.
type ContentStore interface {
	Configured() bool
	PinFile(ctx context.Context, name string, data io.Reader) (string, error)
	PinJSON(ctx context.Context, name string, doc any) (string, error)
	GatewayURL(uri string) string
}
