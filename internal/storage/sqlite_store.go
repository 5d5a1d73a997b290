package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/noahxzhu/redmine-notify/internal/apperr"
)

const watermarkSchema = `
CREATE TABLE IF NOT EXISTS watermark (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	token      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore keeps the watermark in a single-row table.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperr.Persistence("open", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Persistence("open", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, apperr.Persistence("open", fmt.Errorf("apply pragma: %w", err))
		}
	}
	if _, err := db.ExecContext(ctx, watermarkSchema); err != nil {
		_ = db.Close()
		return nil, apperr.Persistence("open", fmt.Errorf("create schema: %w", err))
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Read(ctx context.Context) (string, bool, error) {
	var token string
	err := s.db.GetContext(ctx, &token, `SELECT token FROM watermark WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, apperr.Persistence("read", err)
	}
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (s *SQLiteStore) Write(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermark (id, token, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token      = excluded.token,
			updated_at = excluded.updated_at`,
		token, time.Now().UTC().Unix(),
	)
	return apperr.Persistence("write", err)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
