package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// dbExecutor is the subset of *sql.DB the db-backed store needs.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dbStore keeps blobs inline in the blobs table. The default backend: no
// extra moving parts, and expiry cleanup stays a pure DB operation.
type dbStore struct {
	db dbExecutor
}

func NewDBStore(db dbExecutor) Store {
	return dbStore{db: db}
}

func (s dbStore) Put(ctx context.Context, _ string, data []byte) (string, error) {
	ref := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO blobs(ref,data,created_at) VALUES (?,?,?)`, ref, data, now); err != nil {
		return "", err
	}
	return ref, nil
}

func (s dbStore) Get(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE ref=?`, ref).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s dbStore) Delete(ctx context.Context, ref string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE ref=?`, ref)
	return err
}
