// Package sessions persists conversations to disk.
package sessions

import (
	"time"

	"github.com/dohr-michael/parrot/internal/conversation"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// MetaKey is the metadata entry holding the conversation key.
const MetaKey = "key"

// TokenUsage tracks cumulative token consumption for a session.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Session holds metadata about a conversation session.
type Session struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Status       SessionStatus     `json:"status"`
	Model        string            `json:"model,omitempty"`
	MessageCount int               `json:"message_count"`
	TokenUsage   TokenUsage        `json:"token_usage"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Key returns the conversation key the session was opened for.
func (s *Session) Key() string {
	return s.Metadata[MetaKey]
}

// Message is a single turn in a conversation, serializable to JSONL.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Ts      time.Time `json:"ts"`
}

// Turn converts a stored message to a conversation turn.
func (m Message) Turn() conversation.Turn {
	return conversation.Turn{Role: conversation.Role(m.Role), Content: m.Content}
}

// NewMessage converts a conversation turn to a stored message.
func NewMessage(t conversation.Turn) Message {
	return Message{
		Role:    string(t.Role),
		Content: t.Content,
		Ts:      time.Now(),
	}
}

// Store defines the persistence interface for sessions.
type Store interface {
	Create(key string) (*Session, error)
	Get(id string) (*Session, error)
	FindByKey(key string) (*Session, error)
	List() ([]*Session, error)
	UpdateMeta(s *Session) error
	Close(id string) error
	AppendMessage(sessionID string, msg Message) error
	LoadMessages(sessionID string) ([]Message, error)
}
