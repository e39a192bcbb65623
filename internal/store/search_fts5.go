//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/izy/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			id UNINDEXED,
			title,
			summary,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, d models.Document) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE id = ?`, d.ID)
	_, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (id, title, summary, tags) VALUES (?, ?, ?, ?)`,
		d.ID, d.Title, d.Summary, strings.Join(d.Tags, " "))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

// ftsQuery turns free text into a prefix query so partial words match,
// the way search-as-you-type input arrives.
func ftsQuery(query string) string {
	var terms []string
	for _, f := range strings.Fields(query) {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"*`)
	}
	return strings.Join(terms, " ")
}

// SearchCached runs a full-text search over cached documents, best match first.
func (db *DB) SearchCached(ctx context.Context, query string, limit int) ([]models.Document, error) {
	if strings.TrimSpace(query) == "" {
		return db.RecentDocuments(ctx, limit)
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT d.id, d.title, d.kind, d.last_edited, d.url, d.summary, d.tags, d.icon
		FROM documents_fts f
		JOIN documents d ON d.id = f.id
		WHERE documents_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, ftsQuery(query), limit)
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
