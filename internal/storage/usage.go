package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/dohr-michael/parrot/internal/events"
)

// ProviderUsage is the running total of model calls for one provider.
type ProviderUsage struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Calls        int           `json:"calls"`
	Errors       int           `json:"errors"`
	TokensInput  int           `json:"tokens_input"`
	TokensOutput int           `json:"tokens_output"`
	Duration     time.Duration `json:"duration"`
}

// UsageTracker subscribes to LLM call events and accumulates token usage
// per provider for the lifetime of the process.
type UsageTracker struct {
	mu          sync.Mutex
	totals      map[string]*ProviderUsage
	unsubscribe func()
}

// NewUsageTracker creates a UsageTracker that listens for LLM call events.
func NewUsageTracker(bus *events.Bus) *UsageTracker {
	ut := &UsageTracker{totals: make(map[string]*ProviderUsage)}
	ut.unsubscribe = bus.Subscribe(ut.handleEvent, events.EventLLMCall)
	return ut
}

// Close unsubscribes the tracker from the event bus.
func (ut *UsageTracker) Close() {
	if ut.unsubscribe != nil {
		ut.unsubscribe()
	}
}

func (ut *UsageTracker) handleEvent(e events.Event) {
	payload, ok := events.GetLLMCallPayload(e)
	if !ok || (payload.Phase != "response" && payload.Phase != "error") {
		return
	}

	name := payload.Provider
	if name == "" {
		name = payload.Model
	}

	ut.mu.Lock()
	defer ut.mu.Unlock()

	u, ok := ut.totals[name]
	if !ok {
		u = &ProviderUsage{Provider: name}
		ut.totals[name] = u
	}
	u.Model = payload.Model
	u.Calls++
	if payload.Phase == "error" {
		u.Errors++
	}
	u.TokensInput += payload.TokensInput
	u.TokensOutput += payload.TokensOutput
	u.Duration += payload.Duration
}

// Totals returns a copy of the per-provider totals sorted by provider name.
func (ut *UsageTracker) Totals() []ProviderUsage {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	out := make([]ProviderUsage, 0, len(ut.totals))
	for _, u := range ut.totals {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
