// ABOUTME: Session groups the ordered turns exchanged with one client
// ABOUTME: session_id is the only correlation key between client and server state
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is an ordered transcript keyed by an opaque id
type Session struct {
	SessionID string             `json:"session_id"`
	Turns     []ConversationTurn `json:"turns"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SessionSummary is the listing view of a persisted session
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session. An empty id mints a new one.
func NewSession(sessionID string) *Session {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	now := time.Now().UTC()
	return &Session{
		SessionID: sessionID,
		Turns:     []ConversationTurn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSessionID generates a unique session identifier
func NewSessionID() string {
	return fmt.Sprintf("sess_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}

// Validate checks if the Session has valid data
func (s *Session) Validate() error {
	if s.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	for i, turn := range s.Turns {
		if turn.Role != RoleHuman && turn.Role != RoleAssistant {
			return fmt.Errorf("turn %d has invalid role %q", i, turn.Role)
		}
	}
	return nil
}

// AddTurn appends a turn to the session and updates metadata
func (s *Session) AddTurn(turn ConversationTurn) {
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = time.Now().UTC()
}

// Title returns the text of the first human turn, or "" if there is none
func (s *Session) Title() string {
	for _, turn := range s.Turns {
		if turn.Role == RoleHuman {
			return turn.Text
		}
	}
	return ""
}

// Clone returns a deep copy safe to hand to other goroutines
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = make([]ConversationTurn, len(s.Turns))
	for i, turn := range s.Turns {
		c.Turns[i] = turn
		if turn.Attachment != nil {
			ref := *turn.Attachment
			c.Turns[i].Attachment = &ref
		}
	}
	return &c
}
