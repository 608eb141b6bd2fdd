// Package storage persists binary attachments (audit photos) outside
// the database. Rows store only the reference a Store returns.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type Store interface {
	// Store persists data under the suggested key and returns the
	// reference to record.
	Store(ctx context.Context, key string, data []byte) (string, error)
}

// Local writes attachments into a flat directory. The reference is the
// key itself, resolvable against Dir.
type Local struct {
	Dir string
}

func (l Local) Store(_ context.Context, key string, data []byte) (string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	path := filepath.Join(l.Dir, filepath.Base(key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return filepath.Base(key), nil
}

func (l Local) Open(key string) (*os.File, error) {
	return os.Open(filepath.Join(l.Dir, filepath.Base(key)))
}

// Discard accepts every attachment without persisting it. Default when
// no storage directory is configured.
type Discard struct{}

func (Discard) Store(_ context.Context, key string, _ []byte) (string, error) {
	return key, nil
}
