package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Each workspace keeps its state under a hidden .deskline directory next to
// the user's files.
const (
	dataDirName = ".deskline"
	dbFileName  = "deskline.db"
)

// Dir returns the workspace data directory.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dataDirName)
}

// Path returns the sqlite file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(Dir(workspace), dbFileName)
}

// EnsureWorkspace creates the data directory if missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := Dir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Open opens the workspace database, creating the data directory when
// needed. Foreign keys are enforced and writers wait on the busy timeout
// instead of failing, since the CLI and a running server may share the file.
func Open(workspace string) (*sql.DB, error) {
	if _, err := EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		Path(workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path(workspace), err)
	}
	return conn, nil
}
