// Package photostore persists meal and reference images behind storage keys.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when no image is stored under a key.
var ErrNotFound = errors.New("photo not found")

type PhotoStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}

// Load reads the whole image stored under storageKey.
func Load(ctx context.Context, s PhotoStore, storageKey string) ([]byte, string, error) {
	rc, mimeType, err := s.Get(ctx, storageKey)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read photo %s: %w", storageKey, err)
	}
	return data, mimeType, nil
}
