// ABOUTME: MCP tool definitions and registration for the ragchat server
// ABOUTME: Defines JSON schemas for the chat, session and index search tools
package mcp

import (
	"github.com/harper/ragchat/internal/core"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Deps are the collaborators the MCP tools call into. Index and Embedder may
// be nil, in which case search_index reports that no index is loaded.
type Deps struct {
	Chat     Chatter
	Sessions SessionSource
	Index    *core.VectorIndex
	Embedder core.Embedder
	TopK     int
	Lambda   float64
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, deps Deps) *Handlers {
	handlers := NewHandlers(deps)

	// 1. chat - Ask a question against the indexed articles
	server.AddTool(mcp.Tool{
		Name:        "chat",
		Description: "Ask a question answered from the indexed articles. Pass session_id to continue a conversation; the server keeps the history for that session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to continue. Omit to start a new session.",
				},
				"attachment_kind": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"image", "csv", "pdf"},
					"description": "Kind of the optional attachment",
				},
				"attachment_base64": map[string]interface{}{
					"type":        "string",
					"description": "Base64-encoded attachment bytes",
				},
				"attachment_filename": map[string]interface{}{
					"type":        "string",
					"description": "Optional attachment file name",
				},
			},
			Required: []string{"question"},
		},
	}, handlers.Chat)

	// 2. list_sessions - List recorded conversations
	server.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List recorded chat sessions, most recently updated first.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.ListSessions)

	// 3. get_session_history - Full transcript of one session
	server.AddTool(mcp.Tool{
		Name:        "get_session_history",
		Description: "Get the complete transcript of a chat session.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID to retrieve history for",
				},
			},
			Required: []string{"session_id"},
		},
	}, handlers.GetSessionHistory)

	// 4. search_index - Raw MMR search over the index
	server.AddTool(mcp.Tool{
		Name:        "search_index",
		Description: "Search the article index directly and return the selected chunks with similarity and MMR scores.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"max_results": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of chunks to return (default: 6)",
					"default":     core.DefaultTopK,
				},
				"lambda": map[string]interface{}{
					"type":        "number",
					"description": "Relevance/diversity trade-off in [0, 1]; 1 is pure relevance",
				},
			},
			Required: []string{"query"},
		},
	}, handlers.SearchIndex)

	return handlers
}
