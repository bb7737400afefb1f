// ABOUTME: HTTP handlers and the chat wire format
// ABOUTME: Maps pipeline errors to status codes with a JSON error body
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/models"
)

// historyEntry is one chat_history element. "type" is the documented field;
// "role" is accepted as an alias.
type historyEntry struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// attachmentBody carries a base64 payload
type attachmentBody struct {
	Kind     string `json:"kind"`
	Payload  string `json:"payload"`
	Filename string `json:"filename,omitempty"`
}

// chatRequest is the POST /api/chat body. "query" is accepted for older clients.
type chatRequest struct {
	Question    string          `json:"question"`
	Query       string          `json:"query,omitempty"`
	ChatHistory []historyEntry  `json:"chat_history,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Attachment  *attachmentBody `json:"attachment,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status         string           `json:"status"`
	IndexSize      int              `json:"index_size"`
	IndexDimension int              `json:"index_dimension"`
	Cache          *core.CacheStats `json:"cache,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Index != nil {
		resp.IndexSize = s.opts.Index.Len()
		resp.IndexDimension = s.opts.Index.Dimension()
	}
	if s.opts.Cache != nil {
		stats := s.opts.Cache.Stats()
		resp.Cache = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	req, err := body.toChatRequest()
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.chat.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: result.Response, SessionID: result.SessionID})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.sessions.ListSessions()
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []models.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	session, err := s.sessions.History(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("session %s not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// toChatRequest validates the wire fields and decodes the attachment
func (b *chatRequest) toChatRequest() (models.ChatRequest, error) {
	question := b.Question
	if question == "" {
		question = b.Query
	}
	req := models.ChatRequest{
		Question:  question,
		SessionID: b.SessionID,
	}

	for i, h := range b.ChatHistory {
		name := h.Type
		if name == "" {
			name = h.Role
		}
		role, err := models.ParseRole(name)
		if err != nil {
			return req, &models.ValidationError{Field: "chat_history", Message: fmt.Sprintf("entry %d: %v", i, err)}
		}
		req.History = append(req.History, models.HistoryMessage{Role: role, Text: h.Content})
	}

	if a := b.Attachment; a != nil {
		kind, err := models.ParseAttachmentKind(a.Kind, a.Filename)
		if err != nil {
			return req, &models.ValidationError{Field: "attachment", Message: err.Error()}
		}
		payload, err := base64.StdEncoding.DecodeString(a.Payload)
		if err != nil {
			return req, &models.ValidationError{Field: "attachment", Message: "payload is not valid base64"}
		}
		req.Attachment = &models.Attachment{Kind: kind, Filename: a.Filename, Payload: payload}
	}

	return req, nil
}

// statusFor maps a pipeline error to an HTTP status and client message
func statusFor(err error) (int, string) {
	var validation *models.ValidationError
	var tooLarge *models.PromptTooLargeError
	var upstream *models.UpstreamError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.As(err, &upstream):
		return http.StatusBadGateway, models.UpstreamUserMessage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request abandoned"
	}
	return http.StatusInternalServerError, err.Error()
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= 500 {
		log.Printf("[HTTP] %d: %v", status, err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: r.Method + " not allowed on " + r.URL.Path})
}
