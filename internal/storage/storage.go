// Package storage reads and writes objects in a bucket or a local directory.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// Store is object storage addressed by key
type Store interface {
	// Upload writes data from reader to key, replacing any existing object
	Upload(ctx context.Context, key string, reader io.Reader) error
	// Download returns a reader for key. Missing objects fail with errdefs.ErrNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether an object is stored at key
	Exists(ctx context.Context, key string) (bool, error)
}

// ReadAll downloads a whole object
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	body, err := store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// WriteAll uploads a whole object
func WriteAll(ctx context.Context, store Store, key string, data []byte) error {
	return store.Upload(ctx, key, bytes.NewReader(data))
}

// URI formats an s3:// URI from a bucket and key parts
func URI(bucket string, parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, strings.Trim(bucket, "/"))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return "s3://" + strings.Join(clean, "/")
}

// ParseURI splits an s3:// URI into bucket and key
func ParseURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("storage: %q is not an s3 uri", uri)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("storage: %q has no bucket", uri)
	}
	return bucket, key, nil
}
