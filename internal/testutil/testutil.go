// Package testutil provides shared test helpers for stores, drafts and
// canned remote documents.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/storage"
	"github.com/starford/izy/internal/store"
)

// TestDB creates a temporary SQLite store that is automatically closed.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "izy-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDrafts creates a temporary drafts directory and its service.
func TestDrafts(t *testing.T) (string, *storage.Drafts) {
	t.Helper()
	fs, err := storage.NewFS(filepath.Join(t.TempDir(), "drafts"))
	if err != nil {
		t.Fatal(err)
	}
	return fs.Root(), storage.NewDrafts(fs)
}

// Configure stores settings carrying token.
func Configure(t *testing.T, db *store.DB, token string) {
	t.Helper()
	if err := db.SaveSettings(context.Background(), models.Settings{NotionToken: token, AIKey: "ai", DisplayName: "Tester"}); err != nil {
		t.Fatal(err)
	}
}

// Documents returns n distinct documents, most recently edited first.
func Documents(n int) []models.Document {
	out := make([]models.Document, n)
	for i := range out {
		id := fmt.Sprintf("doc-%02d", i)
		out[i] = models.Document{
			ID:         id,
			Title:      fmt.Sprintf("Document %d", i),
			Kind:       models.KindDocument,
			LastEdited: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			URL:        "https://notion.so/" + id,
			Tags:       []string{},
			Icon:       models.IconDocument,
		}
	}
	return out
}

// FakeFetcher serves canned documents and records appended notes.
type FakeFetcher struct {
	mu       sync.Mutex
	Docs     []models.Document
	Err      error
	Queries  []string
	Appended []string // "<target>:<text>"
}

// FetchDocuments implements workspace.Fetcher.
func (f *FakeFetcher) FetchDocuments(_ context.Context, settings models.Settings, query string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !settings.Configured() {
		return nil, apperr.ErrNotConfigured
	}
	f.Queries = append(f.Queries, query)
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]models.Document(nil), f.Docs...), nil
}

// AppendNote implements workspace.Fetcher.
func (f *FakeFetcher) AppendNote(_ context.Context, settings models.Settings, targetID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !settings.Configured() {
		return apperr.ErrNotConfigured
	}
	if f.Err != nil {
		return f.Err
	}
	f.Appended = append(f.Appended, targetID+":"+text)
	return nil
}

// Calls returns how many searches were performed.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Queries)
}
