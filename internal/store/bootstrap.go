package store

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

const postgresTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    id            SERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS configs (
    id         SERIAL PRIMARY KEY,
    user_id    INT NOT NULL REFERENCES users(id),
    platform   TEXT NOT NULL,
    config     TEXT NOT NULL,
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (user_id, platform)
);

CREATE TABLE IF NOT EXISTS files (
    id           TEXT PRIMARY KEY,
    platform     TEXT NOT NULL,
    coordinates  TEXT NOT NULL,
    file_name    TEXT NOT NULL,
    content_type TEXT NOT NULL,
    size_bytes   BIGINT NOT NULL DEFAULT 0,
    upload_ip    TEXT NOT NULL DEFAULT '',
    ts           BIGINT NOT NULL,
    tags         TEXT NOT NULL DEFAULT '[]',
    directory    TEXT NOT NULL DEFAULT '',
    label        TEXT NOT NULL DEFAULT 'None',
    created_at   TIMESTAMPTZ DEFAULT NOW(),
    updated_at   TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_files_created_at ON files (created_at DESC);
`

const sqliteTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS configs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL REFERENCES users(id),
    platform   TEXT NOT NULL,
    config     TEXT NOT NULL,
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE (user_id, platform)
);

CREATE TABLE IF NOT EXISTS files (
    id           TEXT PRIMARY KEY,
    platform     TEXT NOT NULL,
    coordinates  TEXT NOT NULL,
    file_name    TEXT NOT NULL,
    content_type TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL DEFAULT 0,
    upload_ip    TEXT NOT NULL DEFAULT '',
    ts           INTEGER NOT NULL,
    tags         TEXT NOT NULL DEFAULT '[]',
    directory    TEXT NOT NULL DEFAULT '',
    label        TEXT NOT NULL DEFAULT 'None',
    created_at   TEXT DEFAULT (datetime('now')),
    updated_at   TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_files_created_at ON files (created_at DESC);
`

// DefaultAdminUser is created on first boot so a fresh install is usable
// before any account management happens.
const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "admin123"
)

// Bootstrap creates the system tables and, when the users table is empty,
// the default admin account.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.TablesSQL()); err != nil {
		return fmt.Errorf("create system tables: %w", err)
	}

	row, err := QueryRow(ctx, s.DB, "SELECT COUNT(*) AS n FROM users")
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n, _ := row["n"].(int64); n > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}

	_, err = Exec(ctx, s.DB,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2)",
		DefaultAdminUser, string(hash))
	if err != nil {
		return fmt.Errorf("create default user: %w", err)
	}

	log.Printf("Created default admin user %q", DefaultAdminUser)
	return nil
}
