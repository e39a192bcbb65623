//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/izy/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; SearchCached uses LIKE on the documents table.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ models.Document) error {
	// Everything searched is already stored in the documents table.
	return nil
}

// SearchCached performs a LIKE-based search over cached documents (fallback
// when FTS5 is not compiled in). Every word of query must match.
func (db *DB) SearchCached(ctx context.Context, query string, limit int) ([]models.Document, error) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return db.RecentDocuments(ctx, limit)
	}
	if limit <= 0 {
		limit = 20
	}

	var (
		where []string
		args  []any
	)
	for _, w := range words {
		like := "%" + w + "%"
		where = append(where, `(title LIKE ? OR summary LIKE ? OR tags LIKE ?)`)
		args = append(args, like, like, like)
	}
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, kind, last_edited, url, summary, tags, icon
		FROM documents
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY last_edited DESC, id
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search cached: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
