package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

// ObjectStore is the blob backend behind the content store. Head returns
// ErrNotFound for a missing key; any other error means the probe failed.
type ObjectStore interface {
	Head(ctx context.Context, key string) error
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PublicURL(key string) string
}
