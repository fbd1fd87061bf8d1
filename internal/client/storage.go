package client

import (
	"context"
	"io"
	"time"
)

// StorageClient defines the interface for object storage operations
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	GetPublicURL(key string) string
}

// LocalFiles is implemented by storage that keeps objects on this host
type LocalFiles interface {
	LocalPath(key string) string
}
