package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dohr-michael/parrot/internal/events"
)

// WSKeyPrefix namespaces conversations opened from WebSocket clients.
const WSKeyPrefix = "ws:"

// EventRunner answers user.message events published by WebSocket clients.
// Replies flow back to clients as assistant.* events.
type EventRunner struct {
	relay *Relay
	bus   *events.Bus
	wg    sync.WaitGroup
}

// NewEventRunner creates an EventRunner.
func NewEventRunner(r *Relay, bus *events.Bus) *EventRunner {
	return &EventRunner{relay: r, bus: bus}
}

// Run consumes events until ctx is done, then waits for in-flight replies.
func (er *EventRunner) Run(ctx context.Context) {
	ch, unsubscribe := er.bus.SubscribeChan(64, events.EventUserMessage)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			er.wg.Wait()
			return
		case e, ok := <-ch:
			if !ok {
				er.wg.Wait()
				return
			}
			if e.Source != events.SourceWS {
				continue
			}
			p, ok := events.GetUserMessagePayload(e)
			if !ok || p.Content == "" {
				continue
			}
			key := WSKeyPrefix + e.SessionID
			if e.SessionID == "" {
				key = WSKeyPrefix + "default"
			}

			er.wg.Add(1)
			go func() {
				defer er.wg.Done()
				if err := er.relay.Respond(ctx, key, p.Content, nil); err != nil {
					slog.Debug("ws reply failed", "key", key, "error", err)
				}
			}()
		}
	}
}
