package models

import "time"

// DefaultDraftName is the draft edited when no name is given.
const DefaultDraftName = "draft.md"

// Draft is a local Markdown note that has not been sent to the workspace.
type Draft struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DraftMetadata is a lightweight representation returned by list operations.
type DraftMetadata struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
