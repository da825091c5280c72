package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole converts a stored role string into a Role
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r, nil
	default:
		return "", fmt.Errorf("unknown chat role %q", s)
	}
}

// ChatSession holds the accumulated search context of one conversation
type ChatSession struct {
	ID        string       `json:"id" db:"id"`
	Token     string       `json:"session_token" db:"session_token"`
	Context   FilterRecord `json:"context" db:"context"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// ChatMessage is one immutable turn in a session.
// ExtractedFilters and ResultCount are only set on assistant turns.
type ChatMessage struct {
	ID               int64         `json:"id" db:"id"`
	SessionID        string        `json:"session_id" db:"session_id"`
	Role             Role          `json:"role" db:"role"`
	Content          string        `json:"content" db:"content"`
	ExtractedFilters *FilterRecord `json:"extracted_filters,omitempty" db:"extracted_filters"`
	ResultCount      *int          `json:"result_count,omitempty" db:"result_count"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// NewSessionToken generates an opaque, unique chat session token
func NewSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSessionID generates a session primary key
func NewSessionID() string {
	return uuid.NewString()
}
