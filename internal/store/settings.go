package store

import (
	"context"
	"fmt"

	"github.com/starford/izy/internal/models"
)

const (
	keyNotionToken = "notion_token"
	keyAIKey       = "ai_key"
	keyRelayURL    = "relay_url"
	keyDisplayName = "display_name"
)

// Settings returns the stored settings. Unset keys are empty except the
// display name, which defaults to models.DefaultDisplayName.
func (db *DB) Settings(ctx context.Context) (models.Settings, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return models.Settings{}, fmt.Errorf("store: settings: %w", err)
	}
	defer rows.Close()

	var s models.Settings
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return models.Settings{}, err
		}
		switch k {
		case keyNotionToken:
			s.NotionToken = v
		case keyAIKey:
			s.AIKey = v
		case keyRelayURL:
			s.RelayURL = v
		case keyDisplayName:
			s.DisplayName = v
		}
	}
	if err := rows.Err(); err != nil {
		return models.Settings{}, err
	}
	if s.DisplayName == "" {
		s.DisplayName = models.DefaultDisplayName
	}
	return s, nil
}

// SaveSettings replaces every stored setting with s.
func (db *DB) SaveSettings(ctx context.Context, s models.Settings) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("store: prepare settings: %w", err)
	}
	defer stmt.Close()

	for k, v := range map[string]string{
		keyNotionToken: s.NotionToken,
		keyAIKey:       s.AIKey,
		keyRelayURL:    s.RelayURL,
		keyDisplayName: s.DisplayName,
	} {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("store: save %s: %w", k, err)
		}
	}
	return tx.Commit()
}
