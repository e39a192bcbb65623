package api

import (
	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/workspace"
)

// Item is a document with its favorite flag (aliased from the domain layer).
type Item = workspace.Item

// DocumentsResponse wraps search results.
type DocumentsResponse struct {
	Documents []Item `json:"documents" validate:"required"`
}

// FavoritesResponse wraps the favorites list.
type FavoritesResponse struct {
	Favorites []Item `json:"favorites" validate:"required"`
}

// AppendNoteRequest is the request body for appending a note to a block.
type AppendNoteRequest struct {
	Text string `json:"text" example:"Follow up with design" validate:"required"`
}

// ToggleFavoriteResponse reports the new favorite state.
type ToggleFavoriteResponse struct {
	ID       string `json:"id" validate:"required"`
	Favorite bool   `json:"favorite"`
}

// SettingsRequest updates settings. Omitted secrets keep their stored value.
type SettingsRequest struct {
	NotionToken *string `json:"notionToken,omitempty"`
	AIKey       *string `json:"aiKey,omitempty"`
	RelayURL    string  `json:"relayUrl" example:"https://relay.example/"`
	DisplayName string  `json:"displayName" example:"Ada"`
}

// SettingsResponse never echoes secrets back.
type SettingsResponse struct {
	Configured  bool   `json:"configured"`
	HasAIKey    bool   `json:"hasAiKey"`
	RelayURL    string `json:"relayUrl"`
	DisplayName string `json:"displayName"`
}

func settingsResponse(s models.Settings) SettingsResponse {
	return SettingsResponse{
		Configured:  s.Configured(),
		HasAIKey:    s.AIKey != "",
		RelayURL:    s.RelayURL,
		DisplayName: s.DisplayName,
	}
}

// DraftsResponse lists stored drafts.
type DraftsResponse struct {
	Drafts []models.DraftMetadata `json:"drafts" validate:"required"`
}

// DraftRequest is the request body for saving a draft.
type DraftRequest struct {
	Content string `json:"content" example:"# Idea\nShip it"`
}

// AppendDraftRequest sends a draft to a block.
type AppendDraftRequest struct {
	Name     string `json:"name,omitempty" example:"draft.md"`
	TargetID string `json:"targetId" validate:"required"`
}

// AskRequest is a question for the assistant. A non-empty Search selects
// the documents used as context.
type AskRequest struct {
	Question string `json:"question" validate:"required"`
	Search   string `json:"search,omitempty"`
}

// AskResponse carries the assistant answer.
type AskResponse struct {
	Answer string `json:"answer" validate:"required"`
}
