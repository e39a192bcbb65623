package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/models"
	"github.com/starford/izy/internal/store"
	"github.com/starford/izy/internal/testutil"
	"github.com/starford/izy/internal/workspace"
)

type echoAsker struct{}

func (echoAsker) Ask(_ context.Context, _, query string, docs []models.Document) string {
	return query + " / " + string(rune('0'+len(docs)))
}

type env struct {
	router  http.Handler
	db      *store.DB
	fetcher *testutil.FakeFetcher
}

// testEnv sets up a temp database, drafts dir, service, and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) env {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) env {
	t.Helper()
	db := testutil.TestDB(t)
	_, drafts := testutil.TestDrafts(t)
	fetcher := &testutil.FakeFetcher{Docs: testutil.Documents(3)}
	svc := workspace.NewService(fetcher, db, drafts, echoAsker{}, nil, nil)
	return env{
		router:  NewRouter(svc, authEnabled, token, sseHandler),
		db:      db,
		fetcher: fetcher,
	}
}

func do(t *testing.T, h http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestDashboardNotConfigured(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	d := decode[workspace.Dashboard](t, w)
	if d.Configured || d.DisplayName != models.DefaultDisplayName {
		t.Errorf("dashboard = %+v", d)
	}
	if e.fetcher.Calls() != 0 {
		t.Error("remote fetched without a token")
	}
}

func TestSearchNotConfigured(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/documents?q=road", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[errResponse](t, w); got.Kind != apperr.NoticeNotConfigured {
		t.Errorf("body = %+v", got)
	}
}

func TestSearchDocumentsMarksFavorites(t *testing.T) {
	e := testEnv(t, "")
	testutil.Configure(t, e.db, "secret")

	w := do(t, e.router, http.MethodPost, "/favorites/doc-01/toggle", nil)
	if w.Code != http.StatusOK || !decode[ToggleFavoriteResponse](t, w).Favorite {
		t.Fatalf("toggle = %d %s", w.Code, w.Body.String())
	}

	w = do(t, e.router, http.MethodGet, "/documents?q=road", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[DocumentsResponse](t, w)
	if len(resp.Documents) != 3 || resp.Documents[0].Favorite || !resp.Documents[1].Favorite {
		t.Errorf("documents = %+v", resp.Documents)
	}
	if e.fetcher.Queries[0] != "road" {
		t.Errorf("queries = %v", e.fetcher.Queries)
	}

	w = do(t, e.router, http.MethodGet, "/favorites", nil)
	favs := decode[FavoritesResponse](t, w)
	if len(favs.Favorites) != 1 || favs.Favorites[0].ID != "doc-01" {
		t.Errorf("favorites = %+v", favs)
	}
}

func TestSearchCachedWithoutToken(t *testing.T) {
	e := testEnv(t, "")
	if err := e.db.RememberDocuments(context.Background(), testutil.Documents(3)); err != nil {
		t.Fatal(err)
	}

	w := do(t, e.router, http.MethodGet, "/documents/cached?q=Document+2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[DocumentsResponse](t, w)
	if len(resp.Documents) != 1 || resp.Documents[0].ID != "doc-02" {
		t.Errorf("documents = %+v", resp.Documents)
	}
	if e.fetcher.Calls() != 0 {
		t.Error("cached search fetched remotely")
	}
}

func TestRemoteFailuresRender(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
		msg    string
	}{
		{"invalid token", &apperr.RemoteRejectedError{Status: 401, Message: "Invalid token"}, http.StatusBadGateway, apperr.NoticeRequestFailed, "Invalid token. Check your credentials."},
		{"network", apperr.ErrNetworkUnreachable, http.StatusBadGateway, apperr.NoticeNetwork, ""},
		{"timeout", apperr.ErrTimeout, http.StatusGatewayTimeout, apperr.NoticeRequestFailed, ""},
		{"transport", apperr.ErrTransportFailure, http.StatusBadGateway, apperr.NoticeRequestFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnv(t, "")
			testutil.Configure(t, e.db, "secret")
			e.fetcher.Err = tt.err

			w := do(t, e.router, http.MethodGet, "/documents", nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			got := decode[errResponse](t, w)
			if got.Kind != tt.kind || (tt.msg != "" && got.Error != tt.msg) {
				t.Errorf("body = %+v", got)
			}
		})
	}
}

func TestAppendNote(t *testing.T) {
	e := testEnv(t, "")
	testutil.Configure(t, e.db, "secret")

	w := do(t, e.router, http.MethodPost, "/documents/blk/notes", AppendNoteRequest{Text: "hello"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(e.fetcher.Appended) != 1 || e.fetcher.Appended[0] != "blk:hello" {
		t.Errorf("appended = %v", e.fetcher.Appended)
	}

	w = do(t, e.router, http.MethodPost, "/documents/blk/notes", AppendNoteRequest{Text: " "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty text = %d, want 400", w.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	e := testEnv(t, "")
	token := "secret"

	w := do(t, e.router, http.MethodPut, "/settings", SettingsRequest{NotionToken: &token, DisplayName: "Ada"})
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d, body = %s", w.Code, w.Body.String())
	}

	// Omitted secrets keep their stored value.
	w = do(t, e.router, http.MethodPut, "/settings", SettingsRequest{RelayURL: "https://relay.example/"})
	if w.Code != http.StatusOK {
		t.Fatalf("second put = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, e.router, http.MethodGet, "/settings", nil)
	got := decode[SettingsResponse](t, w)
	want := SettingsResponse{Configured: true, RelayURL: "https://relay.example/", DisplayName: models.DefaultDisplayName}
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
	if bytes.Contains(w.Body.Bytes(), []byte(token)) {
		t.Error("token echoed back")
	}
}

func TestSettingsValidation(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodPut, "/settings", SettingsRequest{RelayURL: "not a url"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[errResponse](t, w); got.Kind != kindInvalid {
		t.Errorf("body = %+v", got)
	}

	req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d", rec.Code)
	}
}

func TestDraftOptimisticLocking(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/draft", nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("get = %d, etag %q", w.Code, etag)
	}

	w = do(t, e.router, http.MethodPut, "/draft", DraftRequest{Content: "v1"}, "If-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	fresh := w.Header().Get("ETag")

	// The stale checksum no longer matches.
	w = do(t, e.router, http.MethodPut, "/draft", DraftRequest{Content: "v2"}, "If-Match", etag)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale save = %d, want 409", w.Code)
	}

	w = do(t, e.router, http.MethodPut, "/draft", DraftRequest{Content: "v2"}, "If-Match", fresh)
	if w.Code != http.StatusOK || decode[models.Draft](t, w).Content != "v2" {
		t.Fatalf("fresh save = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, e.router, http.MethodGet, "/draft?name=../escape", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad name = %d, want 400", w.Code)
	}

	list := decode[DraftsResponse](t, do(t, e.router, http.MethodGet, "/drafts", nil))
	if len(list.Drafts) != 1 || list.Drafts[0].Name != models.DefaultDraftName {
		t.Errorf("drafts = %+v", list.Drafts)
	}
}

func TestAppendDraft(t *testing.T) {
	e := testEnv(t, "")
	testutil.Configure(t, e.db, "secret")

	w := do(t, e.router, http.MethodPost, "/draft/append", AppendDraftRequest{TargetID: "blk"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty draft = %d, want 400", w.Code)
	}

	do(t, e.router, http.MethodPut, "/draft?name=ideas", DraftRequest{Content: "ship it"})
	w = do(t, e.router, http.MethodPost, "/draft/append", AppendDraftRequest{Name: "ideas", TargetID: "blk"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("append = %d, body = %s", w.Code, w.Body.String())
	}
	if len(e.fetcher.Appended) != 1 || e.fetcher.Appended[0] != "blk:ship it" {
		t.Errorf("appended = %v", e.fetcher.Appended)
	}
	w = do(t, e.router, http.MethodGet, "/draft?name=ideas", nil)
	if decode[models.Draft](t, w).Content != "" {
		t.Error("draft not cleared after append")
	}
}

func TestAsk(t *testing.T) {
	e := testEnv(t, "")
	testutil.Configure(t, e.db, "secret")

	w := do(t, e.router, http.MethodPost, "/ask", AskRequest{Question: "status?", Search: "road"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[AskResponse](t, w).Answer; got != "status? / 3" {
		t.Errorf("answer = %q", got)
	}

	w = do(t, e.router, http.MethodPost, "/ask", AskRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty question = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := do(t, e.router, http.MethodGet, "/settings", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := do(t, e.router, http.MethodGet, "/dashboard", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := do(t, e.router, http.MethodGet, "/dashboard", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")

	w := do(t, e.router, http.MethodGet, "/favorites", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := do(t, e.router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d", w.Code)
	}
}
