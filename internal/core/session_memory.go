// ABOUTME: SessionMemory keeps the working transcript for each chat session
// ABOUTME: Client history replaces the working transcript; the persisted log is append-only
package core

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harper/ragchat/internal/models"
)

// SessionLog is the append-only persisted record of every exchange
type SessionLog interface {
	AppendTurns(sessionID string, turns []models.ConversationTurn) error
	GetSession(sessionID string) (*models.Session, error)
	ListSessions() ([]models.SessionSummary, error)
}

// sessionSlot serializes mutation of one session
type sessionSlot struct {
	mu      sync.Mutex
	session *models.Session
	loaded  bool
}

// SessionMemory holds working transcripts. Mutations of one session are
// serialized; different sessions never block each other.
type SessionMemory struct {
	mu       sync.Mutex
	sessions map[string]*sessionSlot
	log      SessionLog
}

// NewSessionMemory creates a SessionMemory. sessionLog may be nil.
func NewSessionMemory(sessionLog SessionLog) *SessionMemory {
	return &SessionMemory{
		sessions: make(map[string]*sessionSlot),
		log:      sessionLog,
	}
}

// slot returns the slot for id, creating it lazily. Only the map is locked here.
func (m *SessionMemory) slot(id string) *sessionSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &sessionSlot{}
		m.sessions[id] = s
	}
	return s
}

// ensureLoaded must be called with s.mu held
func (m *SessionMemory) ensureLoaded(id string, s *sessionSlot) {
	if s.loaded {
		return
	}
	s.loaded = true
	s.session = models.NewSession(id)

	if m.log == nil {
		return
	}
	persisted, err := m.log.GetSession(id)
	if err != nil {
		log.Printf("[Sessions] Warning: failed to recover session %s: %v", id, err)
		return
	}
	if persisted != nil {
		s.session = persisted.Clone()
	}
}

// GetOrCreate returns a snapshot of the session, creating it on first reference.
// A session known only to the persisted log is recovered from it.
func (m *SessionMemory) GetOrCreate(id string) (*models.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &models.ValidationError{Field: "session_id", Message: "cannot be empty"}
	}
	s := m.slot(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ensureLoaded(id, s)
	return s.session.Clone(), nil
}

// Reconcile replaces the working transcript with the client history and
// returns the rendered transcript for the prompt.
func (m *SessionMemory) Reconcile(id string, history []models.HistoryMessage) (string, error) {
	session, err := m.ReconcileSession(id, history)
	if err != nil {
		return "", err
	}
	return Render(session), nil
}

// ReconcileSession is Reconcile returning the reconciled session snapshot.
// The client is authoritative for the turns preceding the current question,
// so any divergent working state is discarded. Blank entries are skipped.
func (m *SessionMemory) ReconcileSession(id string, history []models.HistoryMessage) (*models.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &models.ValidationError{Field: "session_id", Message: "cannot be empty"}
	}

	turns := make([]models.ConversationTurn, 0, len(history))
	now := time.Now().UTC()
	for i, h := range history {
		if h.Role != models.RoleHuman && h.Role != models.RoleAssistant {
			return nil, &models.ValidationError{Field: "chat_history", Message: fmt.Sprintf("entry %d has unknown role %q", i, h.Role)}
		}
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		turns = append(turns, models.ConversationTurn{
			TurnID:    fmt.Sprintf("hist_%d", i),
			Role:      h.Role,
			Text:      h.Text,
			Timestamp: now,
		})
	}

	s := m.slot(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ensureLoaded(id, s)

	s.session.Turns = turns
	s.session.UpdatedAt = now
	return s.session.Clone(), nil
}

// Commit appends a completed exchange to the persisted log and then to the
// working transcript. Nothing is published if persistence fails.
func (m *SessionMemory) Commit(id string, human, assistant models.ConversationTurn) error {
	if human.Role != models.RoleHuman || assistant.Role != models.RoleAssistant {
		return &models.ValidationError{Field: "turns", Message: "commit expects a human turn followed by an assistant turn"}
	}

	s := m.slot(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ensureLoaded(id, s)

	if m.log != nil {
		if err := m.log.AppendTurns(id, []models.ConversationTurn{human, assistant}); err != nil {
			return fmt.Errorf("failed to persist exchange for session %s: %w", id, err)
		}
	}

	s.session.AddTurn(human)
	s.session.AddTurn(assistant)
	return nil
}

// History returns the persisted log for a session, or the working transcript
// when no log is configured. Unknown sessions return nil.
func (m *SessionMemory) History(id string) (*models.Session, error) {
	if m.log != nil {
		return m.log.GetSession(id)
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	return s.session.Clone(), nil
}

// ListSessions returns a summary per session, most recently updated first
func (m *SessionMemory) ListSessions() ([]models.SessionSummary, error) {
	if m.log != nil {
		return m.log.ListSessions()
	}

	m.mu.Lock()
	slots := make(map[string]*sessionSlot, len(m.sessions))
	for id, s := range m.sessions {
		slots[id] = s
	}
	m.mu.Unlock()

	var summaries []models.SessionSummary
	for id, s := range slots {
		s.mu.Lock()
		if s.session != nil && len(s.session.Turns) > 0 {
			summaries = append(summaries, models.SessionSummary{
				SessionID: id,
				Title:     s.session.Title(),
				TurnCount: len(s.session.Turns),
				CreatedAt: s.session.CreatedAt,
				UpdatedAt: s.session.UpdatedAt,
			})
		}
		s.mu.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Render formats a transcript as "role: text" lines in chronological order.
// An empty session renders to "".
func Render(session *models.Session) string {
	if session == nil {
		return ""
	}
	return RenderTurns(session.Turns)
}

// RenderTurns formats turns the same way Render does
func RenderTurns(turns []models.ConversationTurn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = renderTurn(t)
	}
	return strings.Join(lines, "\n")
}

func renderTurn(t models.ConversationTurn) string {
	return string(t.Role) + ": " + t.Text
}
