// ABOUTME: Tests for the HTTP chat API
// ABOUTME: Exercises routing, the wire format and error status mapping with httptest
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/models"
)

// fakeChatter records requests and answers with a canned response or error
type fakeChatter struct {
	mu    sync.Mutex
	reqs  []models.ChatRequest
	err   error
	reply string
}

func (f *fakeChatter) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, &models.ValidationError{Field: "question", Message: "cannot be empty"}
	}
	id := req.SessionID
	if id == "" {
		id = "sess_minted"
	}
	return &models.ChatResult{SessionID: id, Response: f.reply, State: models.StateAnswered}, nil
}

func (f *fakeChatter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeIndex struct{ n, dim int }

func (f fakeIndex) Len() int       { return f.n }
func (f fakeIndex) Dimension() int { return f.dim }

func newTestServer(chat Chatter, memory *core.SessionMemory, opts Options) *httptest.Server {
	if memory == nil {
		memory = core.NewSessionMemory(nil)
	}
	srv := httptest.NewServer(NewServer(chat, memory, opts).Handler())
	return srv
}

func postChat(t *testing.T, url string, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestRoot(t *testing.T) {
	srv := newTestServer(&fakeChatter{}, nil, Options{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != WelcomeMessage {
		t.Errorf("message = %q", body["message"])
	}
}

func TestChat_Success(t *testing.T) {
	chat := &fakeChatter{reply: "A stack is LIFO."}
	srv := newTestServer(chat, nil, Options{})
	defer srv.Close()

	payload := base64.StdEncoding.EncodeToString([]byte("a,b\n1,2\n"))
	body := fmt.Sprintf(`{
		"question": "What is a stack?",
		"session_id": "sess_42",
		"chat_history": [
			{"type": "human", "content": "hi"},
			{"type": "ai", "content": "hello"}
		],
		"attachment": {"kind": "csv", "payload": %q, "filename": "data.csv"}
	}`, payload)

	resp, decoded := postChat(t, srv.URL, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, decoded)
	}
	if decoded["response"] != "A stack is LIFO." {
		t.Errorf("response = %v", decoded["response"])
	}
	if decoded["session_id"] != "sess_42" {
		t.Errorf("session_id = %v", decoded["session_id"])
	}

	req := chat.reqs[0]
	if len(req.History) != 2 || req.History[0].Role != models.RoleHuman || req.History[1].Role != models.RoleAssistant {
		t.Errorf("history = %+v", req.History)
	}
	if req.Attachment == nil || req.Attachment.Kind != models.AttachmentCSV || string(req.Attachment.Payload) != "a,b\n1,2\n" {
		t.Errorf("attachment = %+v", req.Attachment)
	}
}

func TestChat_MintsSessionID(t *testing.T) {
	srv := newTestServer(&fakeChatter{reply: "ok"}, nil, Options{})
	defer srv.Close()

	_, decoded := postChat(t, srv.URL, `{"query": "legacy field"}`)
	if decoded["session_id"] != "sess_minted" {
		t.Errorf("session_id = %v", decoded["session_id"])
	}
}

func TestChat_BadRequests(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantCalls  int
	}{
		{"missing question", `{"session_id": "s"}`, http.StatusBadRequest, "question", 1},
		{"invalid json", `{"question":`, http.StatusBadRequest, "invalid JSON", 0},
		{"unknown role", `{"question": "q", "chat_history": [{"type": "robot", "content": "x"}]}`, http.StatusBadRequest, "chat_history", 0},
		{"unknown attachment kind", `{"question": "q", "attachment": {"kind": "docx", "payload": "AAAA"}}`, http.StatusBadRequest, "attachment", 0},
		{"bad base64", `{"question": "q", "attachment": {"kind": "pdf", "payload": "not base64!"}}`, http.StatusBadRequest, "base64", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChatter{reply: "ok"}
			srv := newTestServer(chat, nil, Options{})
			defer srv.Close()

			resp, decoded := postChat(t, srv.URL, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			msg, _ := decoded["error"].(string)
			if !strings.Contains(msg, tt.wantError) {
				t.Errorf("error = %q, want it to mention %q", msg, tt.wantError)
			}
			if chat.calls() != tt.wantCalls {
				t.Errorf("Chat calls = %d, want %d", chat.calls(), tt.wantCalls)
			}
		})
	}
}

func TestChat_BodyTooLarge(t *testing.T) {
	srv := newTestServer(&fakeChatter{reply: "ok"}, nil, Options{MaxBodyBytes: 64})
	defer srv.Close()

	body := fmt.Sprintf(`{"question": %q}`, strings.Repeat("x", 200))
	resp, _ := postChat(t, srv.URL, body)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestChat_PipelineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"prompt too large", &models.PromptTooLargeError{Size: 900, Limit: 400}, http.StatusRequestEntityTooLarge, "prompt too large"},
		{"upstream", &models.UpstreamError{Attempts: 4, Err: errors.New("503")}, http.StatusBadGateway, models.UpstreamUserMessage},
		{"retrieval", &models.RetrievalError{Source: "text", Err: &models.EmbeddingError{Err: errors.New("boom")}}, http.StatusInternalServerError, "retrieval failed"},
		{"canceled", fmt.Errorf("request abandoned: %w", context.Canceled), http.StatusServiceUnavailable, "abandoned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeChatter{err: tt.err}, nil, Options{})
			defer srv.Close()

			resp, decoded := postChat(t, srv.URL, `{"question": "q"}`)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if msg, _ := decoded["error"].(string); !strings.Contains(msg, tt.wantError) {
				t.Errorf("error = %q, want %q", msg, tt.wantError)
			}
		})
	}
}

func TestSessions(t *testing.T) {
	memory := core.NewSessionMemory(nil)
	human, _ := models.NewTurn(models.RoleHuman, "What is a queue?", nil)
	assistant, _ := models.NewTurn(models.RoleAssistant, "FIFO.", nil)
	if err := memory.Commit("sess_q", *human, *assistant); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	srv := newTestServer(&fakeChatter{}, memory, Options{})
	defer srv.Close()

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/sessions")
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		var body struct {
			Sessions []models.SessionSummary `json:"sessions"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Sessions) != 1 || body.Sessions[0].SessionID != "sess_q" || body.Sessions[0].TurnCount != 2 {
			t.Errorf("sessions = %+v", body.Sessions)
		}
	})

	t.Run("get", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/sessions/sess_q")
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		var session models.Session
		if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(session.Turns) != 2 || session.Turns[1].Text != "FIFO." {
			t.Errorf("session = %+v", session)
		}
	})

	t.Run("missing", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/sessions/sess_none")
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeChatter{}, nil, Options{
		Index: fakeIndex{n: 12, dim: 3},
		Cache: core.NewRetrievalCache(nil),
	})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.IndexSize != 12 || body.IndexDimension != 3 {
		t.Errorf("health = %+v", body)
	}
	if body.Cache == nil {
		t.Error("cache stats should be reported")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeChatter{}, nil, Options{})
	defer srv.Close()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/chat", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/sessions", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/sessions/sess_1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			if err != nil {
				t.Fatalf("NewRequest() error = %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want != http.StatusMethodNotAllowed {
				return
			}
			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("405 body is not JSON: %v", err)
			}
			if !strings.Contains(body.Error, "not allowed") {
				t.Errorf("error = %q", body.Error)
			}
		})
	}
}
