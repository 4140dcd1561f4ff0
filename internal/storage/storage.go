// Package storage holds submission attachment bytes behind a small
// put/get/delete interface so the workflow engine stays agnostic of where
// files actually live.
package storage

import (
	"context"
	"errors"
	"fmt"

	"deskline/internal/config"
)

var ErrNotFound = errors.New("blob not found")

type Store interface {
	// Put stores data and returns an opaque ref. name is advisory (used by
	// file-backed stores to keep a recognizable extension).
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Open returns the store selected by config.
func Open(cfg *config.Config, db dbExecutor) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageFS:
		return NewFSStore(cfg.Storage.UploadDir)
	case config.StorageDB:
		return NewDBStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
