package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrBadKey   = errors.New("invalid blob key")
	ErrNotFound = errors.New("blob not found")
)

// BlobStore holds listening audio and other test assets.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, key string) (string, error)
}

// CleanKey rejects empty keys and keys escaping the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrBadKey
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrBadKey
	}
	return c, nil
}
