// Package app wires a workspace into a ready engine: database, migrations,
// config and the attachment store.
package app

import (
	"fmt"
	"os"

	"deskline/internal/config"
	"deskline/internal/db"
	"deskline/internal/engine"
	"deskline/internal/migrate"
	"deskline/internal/storage"
)

// Open builds an engine for the workspace. The returned close function
// releases the database handle.
func Open(workspace string) (engine.Engine, func(), error) {
	conn, err := db.Open(workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	applyEnvOverrides(cfg)
	store, err := storage.Open(cfg, conn)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("open attachment store: %w", err)
	}
	e := engine.New(conn, cfg, store)
	return e, func() { conn.Close() }, nil
}

// Secrets may live in the environment instead of deskline.yml so the config
// file can be committed.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("DESKLINE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DESKLINE_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("DESKLINE_CRON_SECRET"); v != "" {
		cfg.Cron.Secret = v
	}
}
