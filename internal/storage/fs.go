package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// fsStore writes blobs under a local uploads directory. Refs are
// uuid-prefixed file names relative to the directory; refs never escape it.
type fsStore struct {
	dir string
}

func NewFSStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return fsStore{dir: dir}, nil
}

func (s fsStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	ref := uuid.New().String()
	if ext := sanitizeExt(name); ext != "" {
		ref += ext
	}
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o644); err != nil {
		return "", err
	}
	return ref, nil
}

func (s fsStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s fsStore) Delete(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s fsStore) resolve(ref string) (string, error) {
	clean := filepath.Base(filepath.Clean(ref))
	if clean == "" || clean == "." || clean == ".." {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, clean), nil
}

func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
