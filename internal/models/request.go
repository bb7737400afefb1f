// ABOUTME: Chat request types and the per-request orchestration states
// ABOUTME: A request moves RECEIVED -> CONTEXT_RESOLVED -> PROMPT_COMPOSED -> ANSWERED or FAILED
package models

// RequestState is a step of the chat request state machine
type RequestState string

const (
	StateReceived        RequestState = "RECEIVED"
	StateContextResolved RequestState = "CONTEXT_RESOLVED"
	StatePromptComposed  RequestState = "PROMPT_COMPOSED"
	StateAnswered        RequestState = "ANSWERED"
	StateFailed          RequestState = "FAILED"
)

// IsTerminal reports whether no further transitions are possible
func (s RequestState) IsTerminal() bool {
	return s == StateAnswered || s == StateFailed
}

// HistoryMessage is one client-supplied chat history entry
type HistoryMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatRequest is the orchestrator input
type ChatRequest struct {
	Question   string           `json:"question"`
	History    []HistoryMessage `json:"history,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	Attachment *Attachment      `json:"attachment,omitempty"`
}

// ChatResult is the orchestrator output
type ChatResult struct {
	SessionID string       `json:"session_id"`
	Response  string       `json:"response"`
	State     RequestState `json:"state"`
	Context   string       `json:"-"`
}
