// Package storage holds image bytes by path and announces new objects to
// the processing webhook.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("object not found")

// Object is a downloaded object.
type Object struct {
	Data        []byte
	ContentType string
}

// Store is an object storage bucket.
type Store interface {
	Bucket() string
	Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, path string) (*Object, error)
	PublicURL(path string) string
}
