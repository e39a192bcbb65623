// Package store keeps izy's local state in SQLite: user settings, the
// favorites set and a cache of recently seen documents.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/izy/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS favorites (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT 'document',
	last_edited TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	icon        TEXT NOT NULL DEFAULT '',
	seen_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_last_edited ON documents(last_edited);
`

// Settings is the key/value settings store.
type Settings interface {
	Settings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error
}

// Favorites is the favorited document id set.
type Favorites interface {
	Favorites(ctx context.Context) (map[string]struct{}, error)
	IsFavorite(ctx context.Context, id string) (bool, error)
	ToggleFavorite(ctx context.Context, id string) (bool, error)
}

// Documents caches documents seen in search results.
type Documents interface {
	RememberDocuments(ctx context.Context, docs []models.Document) error
	RecentDocuments(ctx context.Context, limit int) ([]models.Document, error)
	Document(ctx context.Context, id string) (models.Document, error)
	SearchCached(ctx context.Context, query string, limit int) ([]models.Document, error)
}

// Store is everything the workspace service needs from local state.
type Store interface {
	Settings
	Favorites
	Documents
	Close() error
}

var _ Store = (*DB)(nil)

// DB wraps a sql.DB with store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: init fts: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
