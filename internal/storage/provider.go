// Package storage keeps local drafts as Markdown files under the data
// directory.
package storage

import (
	"time"

	"github.com/starford/izy/internal/models"
)

// Provider is the interface for draft file operations. Paths are relative
// to the drafts root.
type Provider interface {
	// List returns metadata for every .md file under the root.
	List() ([]models.DraftMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// ModTime returns the last modification time of the file at path.
	ModTime(path string) (time.Time, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
