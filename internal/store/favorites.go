package store

import (
	"context"
	"fmt"
)

// Favorites returns the set of favorited document ids.
func (db *DB) Favorites(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM favorites`)
	if err != nil {
		return nil, fmt.Errorf("store: favorites: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// IsFavorite reports whether id is favorited.
func (db *DB) IsFavorite(ctx context.Context, id string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM favorites WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("store: is favorite: %w", err)
	}
	return n > 0, nil
}

// ToggleFavorite flips the favorite state of id and returns the new state.
func (db *DB) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: unfavorite: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO favorites (id) VALUES (?)`, id); err != nil {
			return false, fmt.Errorf("store: favorite: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return removed == 0, nil
}
