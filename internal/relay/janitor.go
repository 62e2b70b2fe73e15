package relay

import (
	"fmt"
	"log/slog"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/dohr-michael/parrot/internal/events"
)

// EvictIdle drops conversations inactive for longer than idle and marks
// their sessions closed. It returns the evicted keys.
func (r *Relay) EvictIdle(idle time.Duration) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*conv
	for key, c := range r.convs {
		// a conversation busy answering is never idle
		if !c.mu.TryLock() {
			continue
		}
		if c.lastActive.Before(cutoff) {
			stale = append(stale, c)
			delete(r.convs, key)
		}
		c.mu.Unlock()
	}
	r.mu.Unlock()

	keys := make([]string, 0, len(stale))
	for _, c := range stale {
		keys = append(keys, c.key)
		if r.store != nil && c.session != nil {
			if err := r.store.Close(c.session.ID); err != nil {
				slog.Warn("close idle session failed", "session", c.session.ID, "error", err)
			}
		}
		r.publish(events.SourceRelay, events.SessionClosedPayload{Key: c.key, SessionID: c.sessionID(), Reason: "idle"}, c.key)
	}
	return keys
}

// Janitor periodically evicts idle conversations.
type Janitor struct {
	relay *Relay
	idle  time.Duration
	cron  *cron.Cron
}

// NewJanitor schedules EvictIdle on schedule, a cron expression or
// descriptor such as "@every 10m".
func NewJanitor(r *Relay, schedule string, idle time.Duration) (*Janitor, error) {
	j := &Janitor{relay: r, idle: idle, cron: cron.New()}
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Sweep runs one eviction pass.
func (j *Janitor) Sweep() {
	if keys := j.relay.EvictIdle(j.idle); len(keys) > 0 {
		slog.Info("idle conversations closed", "count", len(keys))
	}
}

// Start starts the schedule in its own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop stops the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
