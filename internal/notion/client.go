// Package notion is a minimal client for the two Notion API calls izy needs:
// workspace search and appending a paragraph to a block.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/starford/izy/internal/apperr"
)

const (
	DefaultEndpoint = "https://api.notion.com/v1"
	DefaultVersion  = "2022-06-28"
	DefaultPageSize = 20

	defaultHTTPTimeout = 15 * time.Second
	maxErrorBody       = 4 << 10
)

// Config describes how to build a Client.
type Config struct {
	Endpoint   string
	Version    string
	PageSize   int
	HTTPClient *http.Client
	// Rewrite maps the final API URL onto the URL actually requested,
	// e.g. to go through a relay. Nil means no rewriting.
	Rewrite func(apiURL string) string
}

// Client performs authenticated calls to the Notion API.
type Client struct {
	endpoint string
	version  string
	pageSize int
	http     *http.Client
	rewrite  func(string) string
}

// New builds a Client, filling unset Config fields with defaults.
func New(cfg Config) *Client {
	c := &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		version:  cfg.Version,
		pageSize: cfg.PageSize,
		http:     cfg.HTTPClient,
		rewrite:  cfg.Rewrite,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.version == "" {
		c.version = DefaultVersion
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return c
}

// WithRewrite returns a copy of c that sends requests through rewrite.
func (c *Client) WithRewrite(rewrite func(string) string) *Client {
	cp := *c
	cp.rewrite = rewrite
	return &cp
}

// Endpoint returns the API base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type searchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

type searchRequest struct {
	Query    string     `json:"query"`
	Sort     searchSort `json:"sort"`
	PageSize int        `json:"page_size"`
}

type textContent struct {
	Content string `json:"content"`
}

type richTextItem struct {
	Type string      `json:"type"`
	Text textContent `json:"text"`
}

type paragraph struct {
	RichText []richTextItem `json:"rich_text"`
}

type block struct {
	Object    string    `json:"object"`
	Type      string    `json:"type"`
	Paragraph paragraph `json:"paragraph"`
}

type appendRequest struct {
	Children []block `json:"children"`
}

// SearchResponse is the part of a search response izy reads. Items stay raw
// so the normalizer can see the original property order.
type SearchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Search runs a workspace search sorted by most recently edited and returns
// the raw response body.
func (c *Client) Search(ctx context.Context, token, query string) (json.RawMessage, error) {
	body := searchRequest{
		Query:    query,
		Sort:     searchSort{Direction: "descending", Timestamp: "last_edited_time"},
		PageSize: c.pageSize,
	}
	return c.do(ctx, http.MethodPost, c.endpoint+"/search", token, body)
}

// AppendParagraph appends one paragraph block holding text to blockID.
func (c *Client) AppendParagraph(ctx context.Context, token, blockID, text string) (json.RawMessage, error) {
	body := appendRequest{Children: []block{{
		Object: "block",
		Type:   "paragraph",
		Paragraph: paragraph{RichText: []richTextItem{{
			Type: "text",
			Text: textContent{Content: text},
		}}},
	}}}
	apiURL := fmt.Sprintf("%s/blocks/%s/children", c.endpoint, url.PathEscape(blockID))
	return c.do(ctx, http.MethodPatch, apiURL, token, body)
}

func (c *Client) do(ctx context.Context, method, apiURL, token string, payload any) (json.RawMessage, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	target := apiURL
	if c.rewrite != nil {
		target = c.rewrite(apiURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("notion: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &apperr.RemoteRejectedError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, raw),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", apperr.ErrNetworkUnreachable, err)
	}
	if !json.Valid(data) {
		return nil, &apperr.RemoteRejectedError{Status: resp.StatusCode, Message: "response is not valid JSON"}
	}
	return data, nil
}

// errorMessage extracts the "message" field of a JSON error body. Any
// other non-empty body is quoted after the status code.
func errorMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text != "" && json.Valid(body) {
		if msg, err := jsonparser.GetString(body, "message"); err == nil && msg != "" {
			return msg
		}
	}
	if text == "" {
		return fmt.Sprintf("Notion API error (%d)", status)
	}
	return fmt.Sprintf("Notion API error (%d): %s", status, text)
}

// RelayPrefix returns a rewriter that prepends prefix to the API URL, the
// convention used by user-configured CORS relays.
func RelayPrefix(prefix string) func(string) string {
	return func(apiURL string) string {
		return prefix + apiURL
	}
}

// RelayQuery returns a rewriter that passes the escaped API URL as the
// query string of base, the convention of public relays such as corsproxy.io.
func RelayQuery(base string) func(string) string {
	return func(apiURL string) string {
		return base + url.QueryEscape(apiURL)
	}
}

// DecodeSearch extracts the result items from a raw search response. A body
// without results yields no items.
func DecodeSearch(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var resp SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("notion: decode search response: %w", err)
	}
	return resp.Results, nil
}
