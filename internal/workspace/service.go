// Package workspace is the facade user interfaces talk to. It combines the
// orchestrator, local state, drafts and the assistant, and announces
// changes on the event broker.
package workspace

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/izy/internal/assistant"
	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/sse"
	"github.com/starford/izy/internal/storage"
	"github.com/starford/izy/internal/store"
)

// RecentLimit is how many documents the dashboard lists as recently edited.
const RecentLimit = 7

// ErrEmptyDraft is returned when appending a draft with no content.
var ErrEmptyDraft = errors.New("draft is empty")

// Fetcher reads and writes remote documents.
type Fetcher interface {
	FetchDocuments(ctx context.Context, settings models.Settings, query string) ([]models.Document, error)
	AppendNote(ctx context.Context, settings models.Settings, targetID, text string) error
}

// Asker answers questions about documents. It never fails.
type Asker interface {
	Ask(ctx context.Context, apiKey, query string, docs []models.Document) string
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(event sse.Event)
	PublishDraftEvent(kind, name string)
}

// Item is a document as shown to the user.
type Item struct {
	models.Document
	Favorite bool `json:"favorite"`
}

// Dashboard is the landing view.
type Dashboard struct {
	Configured  bool   `json:"configured"`
	DisplayName string `json:"displayName"`
	Favorites   []Item `json:"favorites"`
	Recent      []Item `json:"recent"`
}

// Service implements the user-facing operations.
type Service struct {
	fetcher   Fetcher
	store     store.Store
	drafts    *storage.Drafts
	assistant Asker
	events    Publisher
	logger    *slog.Logger
}

// NewService creates a Service. events may be nil.
func NewService(fetcher Fetcher, st store.Store, drafts *storage.Drafts, asker Asker, events Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:   fetcher,
		store:     st,
		drafts:    drafts,
		assistant: asker,
		events:    events,
		logger:    logger,
	}
}

func (s *Service) publish(typ string, data any) {
	if s.events != nil {
		s.events.Publish(sse.Event{Type: typ, Data: data})
	}
}

// Search fetches documents matching query, remembers them and marks
// favorites.
func (s *Service) Search(ctx context.Context, query string) ([]Item, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.fetcher.FetchDocuments(ctx, settings, query)
	if err != nil {
		return nil, err
	}
	if err := s.store.RememberDocuments(ctx, docs); err != nil {
		s.logger.Warn("workspace: remember documents", slog.String("error", err.Error()))
	}
	s.publish(sse.EventDocumentsFetched, map[string]any{"query": query, "count": len(docs)})
	return s.withFavorites(ctx, docs)
}

// CachedLimit caps offline search results.
const CachedLimit = 20

// SearchCached searches documents remembered from earlier fetches without
// contacting the workspace.
func (s *Service) SearchCached(ctx context.Context, query string) ([]Item, error) {
	docs, err := s.store.SearchCached(ctx, query, CachedLimit)
	if err != nil {
		return nil, err
	}
	return s.withFavorites(ctx, docs)
}

// Dashboard returns favorites among the most recently edited documents and
// the first RecentLimit of them. Without a token it reports Configured=false
// and performs no request.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{
		DisplayName: settings.DisplayName,
		Favorites:   []Item{},
		Recent:      []Item{},
	}
	if !settings.Configured() {
		return d, nil
	}
	d.Configured = true

	items, err := s.Search(ctx, "")
	if err != nil {
		return d, err
	}
	for _, it := range items {
		if it.Favorite {
			d.Favorites = append(d.Favorites, it)
		}
	}
	if len(items) > RecentLimit {
		items = items[:RecentLimit]
	}
	d.Recent = items
	return d, nil
}

// AppendNote appends text to the block targetID.
func (s *Service) AppendNote(ctx context.Context, targetID, text string) error {
	if strings.TrimSpace(targetID) == "" {
		return validation.Errors{"targetId": validation.ErrRequired}
	}
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return err
	}
	return s.fetcher.AppendNote(ctx, settings, targetID, text)
}

// Favorites returns the favorited documents known to the local cache.
func (s *Service) Favorites(ctx context.Context) ([]Item, error) {
	ids, err := s.store.Favorites(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.RecentDocuments(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := []Item{}
	seen := make(map[string]bool, len(ids))
	for _, d := range recent {
		if _, ok := ids[d.ID]; ok {
			out = append(out, Item{Document: d, Favorite: true})
			seen[d.ID] = true
		}
	}
	// Favorites that fell out of the recent window, newest first.
	var older []models.Document
	for id := range ids {
		if seen[id] {
			continue
		}
		d, err := s.store.Document(ctx, id)
		if err != nil {
			continue
		}
		older = append(older, d)
	}
	slices.SortFunc(older, func(a, b models.Document) int {
		if c := cmp.Compare(b.LastEdited, a.LastEdited); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, d := range older {
		out = append(out, Item{Document: d, Favorite: true})
	}
	return out, nil
}

// ToggleFavorite flips the favorite state of id and returns the new state.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, validation.Errors{"id": validation.ErrRequired}
	}
	on, err := s.store.ToggleFavorite(ctx, id)
	if err != nil {
		return false, err
	}
	s.publish(sse.EventFavoriteToggled, map[string]any{"id": id, "favorite": on})
	return on, nil
}

// Settings returns the stored settings.
func (s *Service) Settings(ctx context.Context) (models.Settings, error) {
	return s.store.Settings(ctx)
}

// ValidateSettings checks user-provided settings.
func ValidateSettings(st models.Settings) error {
	return validation.ValidateStruct(&st,
		validation.Field(&st.RelayURL, is.URL),
		validation.Field(&st.DisplayName, validation.Length(0, 64)),
	)
}

// SaveSettings validates and stores settings. An empty display name is
// replaced with the default.
func (s *Service) SaveSettings(ctx context.Context, st models.Settings) (models.Settings, error) {
	st.NotionToken = strings.TrimSpace(st.NotionToken)
	st.AIKey = strings.TrimSpace(st.AIKey)
	st.RelayURL = strings.TrimSpace(st.RelayURL)
	st.DisplayName = strings.TrimSpace(st.DisplayName)
	if st.DisplayName == "" {
		st.DisplayName = models.DefaultDisplayName
	}
	if err := ValidateSettings(st); err != nil {
		return models.Settings{}, err
	}
	if err := s.store.SaveSettings(ctx, st); err != nil {
		return models.Settings{}, err
	}
	s.publish(sse.EventSettingsUpdated, map[string]any{"configured": st.Configured()})
	return st, nil
}

// Drafts lists the stored drafts.
func (s *Service) Drafts(_ context.Context) ([]models.DraftMetadata, error) {
	return s.drafts.List()
}

// Draft returns the named draft.
func (s *Service) Draft(_ context.Context, name string) (models.Draft, error) {
	return s.drafts.Get(name)
}

// SaveDraft replaces the named draft with optimistic concurrency.
func (s *Service) SaveDraft(_ context.Context, name, content, ifMatch string) (models.Draft, error) {
	d, err := s.drafts.Save(name, content, ifMatch)
	if err != nil {
		return models.Draft{}, err
	}
	if s.events != nil {
		s.events.PublishDraftEvent("updated", d.Name)
	}
	return d, nil
}

// AppendDraft sends the named draft to the block targetID and clears it
// once the workspace accepted it.
func (s *Service) AppendDraft(ctx context.Context, name, targetID string) error {
	d, err := s.drafts.Get(name)
	if err != nil {
		return err
	}
	if strings.TrimSpace(d.Content) == "" {
		return ErrEmptyDraft
	}
	if err := s.AppendNote(ctx, targetID, d.Content); err != nil {
		return err
	}
	if err := s.drafts.Clear(d.Name); err != nil {
		return fmt.Errorf("workspace: clear draft after append: %w", err)
	}
	if s.events != nil {
		s.events.PublishDraftEvent("deleted", d.Name)
	}
	return nil
}

// Ask answers question. With a non-empty search the context is that
// search's result; otherwise the most recently seen documents and the
// default draft are used.
func (s *Service) Ask(ctx context.Context, question, search string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", validation.Errors{"question": validation.ErrRequired}
	}
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return "", err
	}

	var docs []models.Document
	if search != "" {
		items, err := s.Search(ctx, search)
		if err != nil {
			return "", err
		}
		for _, it := range items {
			docs = append(docs, it.Document)
		}
	} else {
		docs, err = s.store.RecentDocuments(ctx, assistant.MaxContextDocuments)
		if err != nil {
			return "", err
		}
		if d, err := s.drafts.Get(""); err == nil && strings.TrimSpace(d.Content) != "" {
			docs = append([]models.Document{storage.DraftDocument(d)}, docs...)
		}
	}
	return s.assistant.Ask(ctx, settings.AIKey, question, docs), nil
}

func (s *Service) withFavorites(ctx context.Context, docs []models.Document) ([]Item, error) {
	favs, err := s.store.Favorites(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Item, len(docs))
	for i, d := range docs {
		_, fav := favs[d.ID]
		out[i] = Item{Document: d, Favorite: fav}
	}
	return out, nil
}
