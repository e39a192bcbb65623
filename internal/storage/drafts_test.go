package storage

import (
	"errors"
	"testing"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/models"
)

func TestDraftName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", models.DefaultDraftName, false},
		{"ideas", "ideas.md", false},
		{"ideas.md", "ideas.md", false},
		{"../ideas.md", "", true},
		{"a/b.md", "", true},
		{".hidden.md", "", true},
	}
	for _, tt := range tests {
		got, err := DraftName(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("DraftName(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestDraftGetMissingIsEmpty(t *testing.T) {
	d := NewDrafts(tempRoot(t))
	got, err := d.Get("")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != models.DefaultDraftName || got.Content != "" || got.Checksum != Checksum(nil) {
		t.Errorf("got %+v", got)
	}
}

func TestDraftSaveWithIfMatch(t *testing.T) {
	d := NewDrafts(tempRoot(t))

	first, err := d.Save("", "hello", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.Checksum != Checksum([]byte("hello")) {
		t.Errorf("checksum = %s", first.Checksum)
	}

	second, err := d.Save("", "hello again", first.Checksum)
	if err != nil {
		t.Fatalf("Save with matching checksum: %v", err)
	}

	if _, err := d.Save("", "lost update", first.Checksum); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale checksum err = %v, want ErrConflict", err)
	}

	got, _ := d.Get("")
	if got.Content != "hello again" || got.Checksum != second.Checksum || got.UpdatedAt.IsZero() {
		t.Errorf("got %+v", got)
	}
}

func TestDraftClearAndList(t *testing.T) {
	d := NewDrafts(tempRoot(t))
	_, _ = d.Save("a", "x", "")
	_, _ = d.Save("b", "y", "")

	if err := d.Clear("a"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := d.Clear("never-written"); err != nil {
		t.Fatalf("Clear missing: %v", err)
	}
	list, err := d.List()
	if err != nil || len(list) != 1 || list[0].Name != "b.md" {
		t.Fatalf("List = %+v, %v", list, err)
	}
}

func TestDraftDocument(t *testing.T) {
	doc := DraftDocument(models.Draft{Name: "draft.md", Content: "---\ntags: [work]\n---\n\n# Weekly plan\n- ship #release\n"})
	if doc.Title != "Weekly plan" || doc.Kind != models.KindNote || doc.Icon != models.IconNote {
		t.Errorf("doc = %+v", doc)
	}
	if doc.ID != "draft:draft.md" || doc.Summary != "# Weekly plan\n- ship #release" {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Tags) != 2 || doc.Tags[0] != "work" || doc.Tags[1] != "release" {
		t.Errorf("tags = %v", doc.Tags)
	}
	if empty := DraftDocument(models.Draft{Name: "draft.md"}); empty.Title != "draft" {
		t.Errorf("empty draft title = %q", empty.Title)
	}
}
