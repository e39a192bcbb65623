package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/izy/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *workspace.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/dashboard", h.Dashboard)

	// Documents.
	r.Get("/documents", h.SearchDocuments)
	r.Get("/documents/cached", h.SearchCached)
	r.Post("/documents/{id}/notes", h.AppendNote)

	// Favorites.
	r.Get("/favorites", h.ListFavorites)
	r.Post("/favorites/{id}/toggle", h.ToggleFavorite)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)

	// Drafts.
	r.Get("/drafts", h.ListDrafts)
	r.Get("/draft", h.GetDraft)
	r.Put("/draft", h.SaveDraft)
	r.Post("/draft/append", h.AppendDraft)

	r.Post("/ask", h.Ask)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
