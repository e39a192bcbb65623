// Package assistant answers natural-language questions about recently seen
// documents with a generative model. It fails soft: callers always get a
// displayable answer.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/starford/izy/internal/models"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"

	// MaxContextDocuments caps how many documents are sent as context.
	MaxContextDocuments = 15

	defaultHTTPTimeout = 60 * time.Second
)

// Fixed replies shown instead of an error.
const (
	ReplyNoKey     = "The assistant is not configured. Add an AI key in settings to ask questions."
	ReplyNoContext = "No documents were found in the current search to analyze."
	ReplyNoAnswer  = "I could not produce an answer."
	ReplyFailure   = "Sorry, I am having trouble processing your data right now."
)

// Config describes how to reach the model.
type Config struct {
	Endpoint   string
	Model      string
	HTTPClient *http.Client
}

// Assistant calls the Gemini generateContent API.
type Assistant struct {
	endpoint string
	model    string
	http     *http.Client
	logger   *slog.Logger
}

// New creates an Assistant, filling unset Config fields with defaults.
func New(cfg Config, logger *slog.Logger) *Assistant {
	a := &Assistant{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		http:     cfg.HTTPClient,
		logger:   logger,
	}
	if a.endpoint == "" {
		a.endpoint = DefaultEndpoint
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.http == nil {
		a.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

type contextDoc struct {
	Title      string      `json:"title"`
	Kind       models.Kind `json:"kind"`
	Tags       []string    `json:"tags"`
	Summary    string      `json:"summary"`
	LastEdited string      `json:"lastEdited"`
}

// Ask answers query using docs as context. It never returns an error; every
// failure is logged and replaced with a fixed reply.
func (a *Assistant) Ask(ctx context.Context, apiKey, query string, docs []models.Document) string {
	if apiKey == "" {
		return ReplyNoKey
	}
	if len(docs) == 0 {
		return ReplyNoContext
	}

	prompt, err := buildPrompt(query, docs)
	if err != nil {
		a.logger.Warn("assistant: build prompt", slog.String("error", err.Error()))
		return ReplyFailure
	}
	answer, err := a.generate(ctx, apiKey, prompt)
	if err != nil {
		a.logger.Warn("assistant: generate", slog.String("error", err.Error()))
		return ReplyFailure
	}
	if answer == "" {
		return ReplyNoAnswer
	}
	return answer
}

func buildPrompt(query string, docs []models.Document) (string, error) {
	if len(docs) > MaxContextDocuments {
		docs = docs[:MaxContextDocuments]
	}
	ctxDocs := make([]contextDoc, len(docs))
	for i, d := range docs {
		ctxDocs[i] = contextDoc{
			Title:      d.Title,
			Kind:       d.Kind,
			Tags:       d.Tags,
			Summary:    d.Summary,
			LastEdited: d.LastEdited,
		}
	}
	raw, err := json.Marshal(ctxDocs)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are Izy, an assistant that knows the user's Notion workspace.\n")
	b.WriteString("The user asks a question about their documents.\n\n")
	b.WriteString("Metadata of recently found documents (context):\n")
	b.Write(raw)
	fmt.Fprintf(&b, "\n\nUser question: %q\n\n", query)
	b.WriteString("Instructions:\n")
	b.WriteString("1. Answer in a friendly and direct way.\n")
	b.WriteString("2. Use the context to find the answer.\n")
	b.WriteString("3. For questions about recent work, use the lastEdited values.\n")
	b.WriteString("4. If the metadata is not enough, suggest opening the specific document.\n")
	return b.String(), nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

func (a *Assistant) generate(ctx context.Context, apiKey, prompt string) (string, error) {
	buf, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.endpoint, a.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		msg, _ := jsonparser.GetString(body, "error", "message")
		return "", fmt.Errorf("gemini API error: %s (%s)", resp.Status, msg)
	}

	var out strings.Builder
	_, err = jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		if text, err := jsonparser.GetString(value, "text"); err == nil {
			out.WriteString(text)
		}
	}, "candidates", "[0]", "content", "parts")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return "", fmt.Errorf("gemini API: decode response: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}
