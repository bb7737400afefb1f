// ABOUTME: ConversationTurn represents one human or assistant message in a session
// ABOUTME: Turns are ordered and append-only within an exchange
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// ParseRole maps wire role names ("human", "ai", "user", "assistant") to a Role
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human", "user":
		return RoleHuman, nil
	case "ai", "assistant":
		return RoleAssistant, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ConversationTurn is a single message within a session.
// Attachment is only ever set on human turns.
type ConversationTurn struct {
	TurnID     string         `json:"turn_id"`
	Role       Role           `json:"role"`
	Text       string         `json:"text"`
	Attachment *AttachmentRef `json:"attachment,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewTurn creates a new turn with validation
func NewTurn(role Role, text string, attachment *AttachmentRef) (*ConversationTurn, error) {
	if role != RoleHuman && role != RoleAssistant {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("turn text cannot be empty")
	}
	if attachment != nil && role != RoleHuman {
		return nil, errors.New("only human turns may carry attachments")
	}
	return &ConversationTurn{
		TurnID:     generateTurnID(),
		Role:       role,
		Text:       text,
		Attachment: attachment,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// generateTurnID generates a unique turn identifier
func generateTurnID() string {
	return fmt.Sprintf("turn_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}
