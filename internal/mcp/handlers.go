// ABOUTME: MCP tool handler implementations for the ragchat server
// ABOUTME: Failures are returned as tool errors with the same text the HTTP API uses
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

// Chatter answers chat requests
type Chatter interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error)
}

// SessionSource lists sessions and returns their history
type SessionSource interface {
	ListSessions() ([]models.SessionSummary, error)
	History(id string) (*models.Session, error)
}

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	chat     Chatter
	sessions SessionSource
	index    *core.VectorIndex
	embedder core.Embedder
	topK     int
	lambda   float64
}

// NewHandlers creates handlers from deps
func NewHandlers(deps Deps) *Handlers {
	topK := deps.TopK
	if topK <= 0 {
		topK = core.DefaultTopK
	}
	return &Handlers{
		chat:     deps.Chat,
		sessions: deps.Sessions,
		index:    deps.Index,
		embedder: deps.Embedder,
		topK:     topK,
		lambda:   deps.Lambda,
	}
}

// Chat handles the chat tool. MCP clients keep no transcript of their own, so
// the session's recorded history is replayed as the client history.
func (h *Handlers) Chat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	req := models.ChatRequest{
		Question:  question,
		SessionID: request.GetString("session_id", ""),
	}

	if req.SessionID != "" {
		session, err := h.sessions.History(req.SessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load session history: %v", err)), nil
		}
		if session != nil {
			for _, turn := range session.Turns {
				req.History = append(req.History, models.HistoryMessage{Role: turn.Role, Text: turn.Text})
			}
		}
	}

	if payload := request.GetString("attachment_base64", ""); payload != "" {
		filename := request.GetString("attachment_filename", "")
		kind, err := models.ParseAttachmentKind(request.GetString("attachment_kind", ""), filename)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return mcp.NewToolResultError("attachment_base64 is not valid base64"), nil
		}
		req.Attachment = &models.Attachment{Kind: kind, Filename: filename, Payload: data}
	}

	result, err := h.chat.Chat(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(userMessage(err)), nil
	}

	response := map[string]interface{}{
		"session_id": result.SessionID,
		"response":   result.Response,
	}
	return jsonResult(response)
}

// ListSessions handles the list_sessions tool
func (h *Handlers) ListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries, err := h.sessions.ListSessions()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}
	if summaries == nil {
		summaries = []models.SessionSummary{}
	}

	response := map[string]interface{}{
		"sessions": summaries,
		"count":    len(summaries),
	}
	return jsonResult(response)
}

// GetSessionHistory handles the get_session_history tool
func (h *Handlers) GetSessionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id argument is required and must be a string"), nil
	}

	session, err := h.sessions.History(sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get session: %v", err)), nil
	}
	if session == nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}

	response := map[string]interface{}{
		"session_id": session.SessionID,
		"created_at": session.CreatedAt,
		"updated_at": session.UpdatedAt,
		"turns":      session.Turns,
		"transcript": core.Render(session),
	}
	return jsonResult(response)
}

// SearchIndex handles the search_index tool
func (h *Handlers) SearchIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	if h.index == nil || h.embedder == nil {
		return mcp.NewToolResultError("no index is loaded; run `ragchat ingest` first"), nil
	}

	maxResults := request.GetInt("max_results", h.topK)
	lambda := request.GetFloat("lambda", h.lambda)

	results, err := h.index.Search(ctx, query, h.embedder, maxResults, lambda)
	if err != nil {
		log.Printf("[MCP] search_index failed: %v", err)
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	response := map[string]interface{}{
		"query":   query,
		"results": results,
		"count":   len(results),
	}
	return jsonResult(response)
}

// userMessage mirrors the HTTP error text for pipeline failures
func userMessage(err error) string {
	var upstream *models.UpstreamError
	if errors.As(err, &upstream) {
		return models.UpstreamUserMessage
	}
	return err.Error()
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
