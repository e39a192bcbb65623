// Package models defines the domain types for izy.
package models

// Kind classifies a document.
type Kind string

const (
	KindContainer Kind = "container" // database-like
	KindDocument  Kind = "document"  // page-like
	KindNote      Kind = "note"      // local-only draft
)

// Default icons by kind.
const (
	IconContainer = "📊"
	IconDocument  = "📄"
	IconNote      = "📝"
)

// UntitledTitle is used when no title can be resolved.
const UntitledTitle = "Untitled"

// Document is the stable internal shape of a remote workspace item.
type Document struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Kind       Kind     `json:"kind"`
	LastEdited string   `json:"lastEdited"` // ISO-8601, display and sort only
	URL        string   `json:"url"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	Icon       string   `json:"icon"`
}

// Settings holds user configuration read by the core and never mutated by it.
type Settings struct {
	NotionToken string `json:"notionToken"`
	AIKey       string `json:"aiKey"`
	RelayURL    string `json:"relayUrl"`
	DisplayName string `json:"displayName"`
}

// DefaultDisplayName is shown until the user picks one.
const DefaultDisplayName = "User"

// Configured reports whether a Notion credential is present.
func (s Settings) Configured() bool {
	return s.NotionToken != ""
}
