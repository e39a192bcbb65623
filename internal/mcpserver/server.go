// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes izy tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/izy/internal/apperr"
	"github.com/starford/izy/internal/storage"
	"github.com/starford/izy/internal/workspace"
)

const settingsHelpURI = "izy://settings-help"

// Server wraps the MCP server with izy tools.
type Server struct {
	mcp *server.MCPServer
	svc *workspace.Service
}

// New creates a new MCP server with all izy tools registered.
func New(svc *workspace.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"izy",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Search pages and databases of the connected Notion workspace. "+
			"An empty query lists the most recently edited documents."),
		mcp.WithString("query", mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("search_cached",
		mcp.WithDescription("Search documents remembered from earlier searches. Works offline and without a token."),
		mcp.WithString("query", mcp.Description("Words that must all appear in title, summary or tags")),
	), s.searchCached)

	s.mcp.AddTool(mcp.NewTool("append_note",
		mcp.WithDescription("Append a paragraph to a page or block."),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Id of the page or block, as returned by search_documents")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Paragraph text")),
	), s.appendNote)

	s.mcp.AddTool(mcp.NewTool("list_favorites",
		mcp.WithDescription("List documents the user marked as favorite."),
	), s.listFavorites)

	s.mcp.AddTool(mcp.NewTool("toggle_favorite",
		mcp.WithDescription("Mark a document as favorite, or unmark it if it already is."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
	), s.toggleFavorite)

	s.mcp.AddTool(mcp.NewTool("ask_documents",
		mcp.WithDescription("Ask the assistant a question about workspace documents. "+
			"With search set, the matching documents are the context; otherwise recently seen documents and the local draft are."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language")),
		mcp.WithString("search", mcp.Description("Optional search query selecting the context documents")),
	), s.askDocuments)

	s.mcp.AddTool(mcp.NewTool("save_draft",
		mcp.WithDescription("Replace the content of a local Markdown draft."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
		mcp.WithString("name", mcp.Description("Draft name (default draft.md)")),
	), s.saveDraft)

	s.mcp.AddTool(mcp.NewTool("append_draft",
		mcp.WithDescription("Send a local draft to a page or block and clear it."),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Id of the page or block")),
		mcp.WithString("name", mcp.Description("Draft name (default draft.md)")),
	), s.appendDraft)

	s.mcp.AddResource(
		mcp.NewResource(settingsHelpURI, "Settings Help",
			mcp.WithResourceDescription("How to configure the workspace token, assistant key and relay."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSettingsHelp,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError renders err the way user interfaces show it.
func toolError(err error) *mcp.CallToolResult {
	var verr validation.Errors
	if errors.As(err, &verr) || errors.Is(err, workspace.ErrEmptyDraft) ||
		errors.Is(err, storage.ErrInvalidName) || errors.Is(err, apperr.ErrConflict) {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(apperr.Describe(err).Message)
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.Search(ctx, req.GetString("query", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(items), nil
}

func (s *Server) searchCached(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.SearchCached(ctx, req.GetString("query", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(items), nil
}

func (s *Server) appendNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.AppendNote(ctx, target, text); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("appended to %s", target)), nil
}

func (s *Server) listFavorites(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.Favorites(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no favorites"), nil
	}
	return jsonResult(items), nil
}

func (s *Server) toggleFavorite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	on, err := s.svc.ToggleFavorite(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	if on {
		return mcp.NewToolResultText(fmt.Sprintf("favorited: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unfavorited: %s", id)), nil
}

func (s *Server) askDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.svc.Ask(ctx, question, req.GetString("search", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(answer), nil
}

func (s *Server) saveDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.SaveDraft(ctx, req.GetString("name", ""), content, "")
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", d.Name)), nil
}

func (s *Server) appendDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.AppendDraft(ctx, req.GetString("name", ""), target); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("draft appended to %s", target)), nil
}

func (s *Server) readSettingsHelp(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      settingsHelpURI,
			MIMEType: "text/markdown",
			Text:     SettingsHelp,
		},
	}, nil
}
