package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/izy/internal/models"
)

func docs(n int) []models.Document {
	out := make([]models.Document, n)
	for i := range out {
		out[i] = models.Document{ID: fmt.Sprint(i), Title: fmt.Sprintf("Doc %d", i), Kind: models.KindDocument, Tags: []string{}}
	}
	return out
}

func TestAskSoftFailures(t *testing.T) {
	a := New(Config{Endpoint: "http://127.0.0.1:1"}, nil)
	ctx := context.Background()

	if got := a.Ask(ctx, "", "q", docs(1)); got != ReplyNoKey {
		t.Errorf("no key: %q", got)
	}
	if got := a.Ask(ctx, "key", "q", nil); got != ReplyNoContext {
		t.Errorf("no context: %q", got)
	}
	if got := a.Ask(ctx, "key", "q", docs(1)); got != ReplyFailure {
		t.Errorf("unreachable: %q", got)
	}
}

func TestAskGenerateContent(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) == 1 && len(req.Contents[0].Parts) == 1 {
			prompt = req.Contents[0].Parts[0].Text
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"You edited "},{"text":"Doc 0 recently."}]}}]}`))
	}))
	defer srv.Close()

	a := New(Config{Endpoint: srv.URL}, nil)
	got := a.Ask(context.Background(), "key", "what did I edit?", docs(20))
	if got != "You edited Doc 0 recently." {
		t.Errorf("answer = %q", got)
	}
	if !strings.Contains(prompt, `"what did I edit?"`) {
		t.Error("prompt misses the question")
	}
	if !strings.Contains(prompt, "Doc 14") || strings.Contains(prompt, "Doc 15") {
		t.Error("context not capped at 15 documents")
	}
}

func TestAskRemoteErrorAndEmptyAnswer(t *testing.T) {
	status := http.StatusBadRequest
	body := `{"error":{"message":"API key not valid"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	a := New(Config{Endpoint: srv.URL, Model: "m"}, nil)

	if got := a.Ask(context.Background(), "bad", "q", docs(1)); got != ReplyFailure {
		t.Errorf("remote error: %q", got)
	}

	status, body = http.StatusOK, `{"candidates":[]}`
	if got := a.Ask(context.Background(), "key", "q", docs(1)); got != ReplyNoAnswer {
		t.Errorf("empty answer: %q", got)
	}
}
