// Package conversation holds the running dialogue sent to a provider and the
// aggregator that turns a streamed reply into sentences.
package conversation

import (
	"errors"
	"fmt"
	"sync"
)

// Role tags a turn with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is one role-tagged message of the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var (
	ErrInvalidRole     = errors.New("invalid role")
	ErrMisplacedSystem = errors.New("system turn must be the first turn")
)

// History is an append-only list of turns. A system turn may only appear
// once, at index 0. It is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory creates a history, seeded with a system turn when prompt is non-empty.
func NewHistory(systemPrompt string) *History {
	h := &History{}
	if systemPrompt != "" {
		h.turns = append(h.turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	return h
}

// Append adds a turn at the end.
func (h *History) Append(t Turn) error {
	if !t.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, t.Role)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if t.Role == RoleSystem && len(h.turns) > 0 {
		return ErrMisplacedSystem
	}
	h.turns = append(h.turns, t)
	return nil
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Turns returns a copy of every turn in order.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}

// Since returns a copy of the turns from index i onwards.
func (h *History) Since(i int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(h.turns) {
		return nil
	}
	return append([]Turn(nil), h.turns[i:]...)
}

// SystemPrompt returns the content of the leading system turn, or "".
func (h *History) SystemPrompt() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) > 0 && h.turns[0].Role == RoleSystem {
		return h.turns[0].Content
	}
	return ""
}

// Window returns the turns to send with the next request: the system turn
// (if any) followed by at most maxTurns of the most recent other turns.
// maxTurns <= 0 means no limit.
func (h *History) Window(maxTurns int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var head []Turn
	rest := h.turns
	if len(rest) > 0 && rest[0].Role == RoleSystem {
		head = rest[:1]
		rest = rest[1:]
	}
	if maxTurns > 0 && len(rest) > maxTurns {
		rest = rest[len(rest)-maxTurns:]
	}

	out := make([]Turn, 0, len(head)+len(rest))
	out = append(out, head...)
	return append(out, rest...)
}
