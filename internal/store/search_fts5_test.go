//go:build sqlite_fts5

package store

import (
	"context"
	"testing"

	"github.com/starford/izy/internal/models"
)

func TestFTSQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"road", `"road"*`},
		{"road  map", `"road"* "map"*`},
		{`say "hi"`, `"say"* """hi"""*`},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchCachedPrefixAndRank(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	docs := []models.Document{
		{ID: "a", Title: "Meeting notes", Kind: models.KindDocument, LastEdited: "2024-01-01T00:00:00Z", Summary: "roadmap mentioned once", Tags: []string{}},
		{ID: "b", Title: "Roadmap", Kind: models.KindDocument, LastEdited: "2024-01-02T00:00:00Z", Summary: "roadmap roadmap roadmap", Tags: []string{"roadmap"}},
	}
	if err := db.RememberDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}

	got, err := db.SearchCached(ctx, "road", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("got %+v, want best match first", got)
	}
}
