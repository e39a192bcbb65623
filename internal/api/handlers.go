package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/workspace"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *workspace.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *workspace.Service) *Handler {
	return &Handler{svc: svc}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body", Kind: kindInvalid})
		return false
	}
	return true
}

func writeDraft(w http.ResponseWriter, d models.Draft) {
	w.Header().Set("ETag", `"`+d.Checksum+`"`)
	writeJSON(w, http.StatusOK, d)
}

// Dashboard handles GET /api/dashboard.
//
//	@Summary		Landing view with favorites and recently edited documents
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	workspace.Dashboard
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		writeError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SearchDocuments handles GET /api/documents.
//
//	@Summary		Search workspace documents
//	@Tags			documents
//	@Produce		json
//	@Param			q	query		string	false	"Search query, empty lists recent documents"
//	@Success		200	{object}	DocumentsResponse
//	@Failure		412	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "search documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: items})
}

// SearchCached handles GET /api/documents/cached. It never contacts the
// workspace.
func (h *Handler) SearchCached(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.SearchCached(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "search cached documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: items})
}

// AppendNote handles POST /api/documents/{id}/notes.
//
//	@Summary		Append a paragraph to a document or block
//	@Tags			documents
//	@Accept			json
//	@Param			id		path	string				true	"Target block id"
//	@Param			body	body	AppendNoteRequest	true	"Paragraph text"
//	@Success		204		"Appended"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/notes [post]
func (h *Handler) AppendNote(w http.ResponseWriter, r *http.Request) {
	var req AppendNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "text is required", Kind: kindInvalid})
		return
	}
	if err := h.svc.AppendNote(r.Context(), chi.URLParam(r, "id"), req.Text); err != nil {
		writeError(w, "append note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFavorites handles GET /api/favorites.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Favorites(r.Context())
	if err != nil {
		writeError(w, "list favorites", err)
		return
	}
	writeJSON(w, http.StatusOK, FavoritesResponse{Favorites: items})
}

// ToggleFavorite handles POST /api/favorites/{id}/toggle.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	on, err := h.svc.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeError(w, "toggle favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleFavoriteResponse{ID: id, Favorite: on})
}

// GetSettings handles GET /api/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings(r.Context())
	if err != nil {
		writeError(w, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(s))
}

// UpdateSettings handles PUT /api/settings.
//
//	@Summary		Update settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SettingsRequest	true	"New settings"
//	@Success		200		{object}	SettingsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	current, err := h.svc.Settings(r.Context())
	if err != nil {
		writeError(w, "update settings", err)
		return
	}
	next := models.Settings{
		NotionToken: current.NotionToken,
		AIKey:       current.AIKey,
		RelayURL:    req.RelayURL,
		DisplayName: req.DisplayName,
	}
	if req.NotionToken != nil {
		next.NotionToken = *req.NotionToken
	}
	if req.AIKey != nil {
		next.AIKey = *req.AIKey
	}
	saved, err := h.svc.SaveSettings(r.Context(), next)
	if err != nil {
		writeError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(saved))
}

// ListDrafts handles GET /api/drafts.
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.svc.Drafts(r.Context())
	if err != nil {
		writeError(w, "list drafts", err)
		return
	}
	writeJSON(w, http.StatusOK, DraftsResponse{Drafts: drafts})
}

// GetDraft handles GET /api/draft.
//
//	@Summary		Get a local draft
//	@Tags			drafts
//	@Produce		json
//	@Param			name	query		string	false	"Draft name"
//	@Success		200		{object}	models.Draft
//	@Header			200		{string}	ETag	"Content checksum"
//	@Security		BearerAuth
//	@Router			/draft [get]
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Draft(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, "get draft", err)
		return
	}
	writeDraft(w, d)
}

// SaveDraft handles PUT /api/draft.
//
//	@Summary		Save a local draft with optimistic concurrency
//	@Tags			drafts
//	@Accept			json
//	@Produce		json
//	@Param			name		query	string			false	"Draft name"
//	@Param			If-Match	header	string			false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	DraftRequest	true	"Draft content"
//	@Success		200			{object}	models.Draft
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/draft [put]
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	d, err := h.svc.SaveDraft(r.Context(), r.URL.Query().Get("name"), req.Content, ifMatch)
	if err != nil {
		writeError(w, "save draft", err)
		return
	}
	writeDraft(w, d)
}

// AppendDraft handles POST /api/draft/append.
func (h *Handler) AppendDraft(w http.ResponseWriter, r *http.Request) {
	var req AppendDraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.AppendDraft(r.Context(), req.Name, req.TargetID); err != nil {
		writeError(w, "append draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ask handles POST /api/ask.
//
//	@Summary		Ask the assistant about workspace documents
//	@Tags			assistant
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AskRequest	true	"Question"
//	@Success		200		{object}	AskResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ask [post]
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	answer, err := h.svc.Ask(r.Context(), req.Question, req.Search)
	if err != nil {
		writeError(w, "ask", err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: answer})
}
