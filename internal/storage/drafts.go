package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/parser"
)

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ErrInvalidName is returned for draft names that are not plain file names.
var ErrInvalidName = errors.New("invalid draft name")

// Drafts reads and writes drafts with optimistic concurrency.
type Drafts struct {
	fs Provider
}

// NewDrafts creates a Drafts service over fs.
func NewDrafts(fs Provider) *Drafts {
	return &Drafts{fs: fs}
}

// DraftName validates name and returns the file name to use. An empty
// name selects models.DefaultDraftName.
func DraftName(name string) (string, error) {
	if name == "" {
		return models.DefaultDraftName, nil
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("storage: %w %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return name, nil
}

// Get returns the named draft. A draft that was never written is empty.
func (d *Drafts) Get(name string) (models.Draft, error) {
	name, err := DraftName(name)
	if err != nil {
		return models.Draft{}, err
	}
	data, err := d.fs.Read(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Draft{Name: name, Checksum: Checksum(nil)}, nil
		}
		return models.Draft{}, err
	}
	modTime, err := d.fs.ModTime(name)
	if err != nil {
		return models.Draft{}, err
	}
	return models.Draft{
		Name:      name,
		Content:   string(data),
		Checksum:  Checksum(data),
		UpdatedAt: modTime.UTC(),
	}, nil
}

// Save replaces the named draft. A non-empty ifMatch must equal the
// checksum of the current content or apperr.ErrConflict is returned.
func (d *Drafts) Save(name, content, ifMatch string) (models.Draft, error) {
	current, err := d.Get(name)
	if err != nil {
		return models.Draft{}, err
	}
	if ifMatch != "" && ifMatch != current.Checksum {
		return models.Draft{}, apperr.ErrConflict
	}
	if err := d.fs.Write(current.Name, []byte(content)); err != nil {
		return models.Draft{}, err
	}
	return models.Draft{
		Name:      current.Name,
		Content:   content,
		Checksum:  Checksum([]byte(content)),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Clear empties the named draft.
func (d *Drafts) Clear(name string) error {
	name, err := DraftName(name)
	if err != nil {
		return err
	}
	if err := d.fs.Delete(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns metadata for every stored draft.
func (d *Drafts) List() ([]models.DraftMetadata, error) {
	return d.fs.List()
}

// DraftDocument renders d as a local-only note so it can be listed and used
// as assistant context next to remote documents.
func DraftDocument(d models.Draft) models.Document {
	res := parser.Parse([]byte(d.Content))
	title := res.Title
	if title == "" {
		title = strings.TrimSuffix(d.Name, ".md")
	}
	if title == "" {
		title = models.UntitledTitle
	}
	var edited string
	if !d.UpdatedAt.IsZero() {
		edited = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return models.Document{
		ID:         "draft:" + d.Name,
		Title:      title,
		Kind:       models.KindNote,
		LastEdited: edited,
		Summary:    res.Body,
		Tags:       res.Tags,
		Icon:       models.IconNote,
	}
}
