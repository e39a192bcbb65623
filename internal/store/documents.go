package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/models"
)

// RememberDocuments upserts docs into the recently seen cache.
func (db *DB) RememberDocuments(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, title, kind, last_edited, url, summary, tags, icon, seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title       = excluded.title,
			kind        = excluded.kind,
			last_edited = excluded.last_edited,
			url         = excluded.url,
			summary     = excluded.summary,
			tags        = excluded.tags,
			icon        = excluded.icon,
			seen_at     = excluded.seen_at
	`)
	if err != nil {
		return fmt.Errorf("store: prepare document upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range docs {
		tags := d.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, _ := json.Marshal(tags)
		if _, err := stmt.ExecContext(ctx, d.ID, d.Title, string(d.Kind), d.LastEdited, d.URL, d.Summary, string(tagsJSON), d.Icon, now); err != nil {
			return fmt.Errorf("store: upsert document %s: %w", d.ID, err)
		}
		if err := ftsUpsert(ctx, tx, d); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentDocuments returns up to limit cached documents, most recently
// edited first.
func (db *DB) RecentDocuments(ctx context.Context, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, kind, last_edited, url, summary, tags, icon
		FROM documents
		ORDER BY last_edited DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent documents: %w", err)
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

// Document returns one cached document or apperr.ErrNotFound.
func (db *DB) Document(ctx context.Context, id string) (models.Document, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, title, kind, last_edited, url, summary, tags, icon
		FROM documents WHERE id = ?
	`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, apperr.ErrNotFound
	}
	return d, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (models.Document, error) {
	var (
		d        models.Document
		kind     string
		tagsJSON string
	)
	if err := s.Scan(&d.ID, &d.Title, &kind, &d.LastEdited, &d.URL, &d.Summary, &tagsJSON, &d.Icon); err != nil {
		return models.Document{}, err
	}
	d.Kind = models.Kind(kind)
	if err := json.Unmarshal([]byte(tagsJSON), &d.Tags); err != nil || d.Tags == nil {
		d.Tags = []string{}
	}
	return d, nil
}
