package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dohr-michael/parrot/internal/events"
)

const globalLog = "_global.jsonl"

// EventLogger persists bus events to JSONL files, one per conversation key.
type EventLogger struct {
	dir         string
	unsubscribe func()
}

// NewEventLogger creates an EventLogger that subscribes to all bus events
// and writes them as JSONL to dir.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	// Stream chunks are redundant with assistant.message.
	if e.Type == events.EventAssistantStream {
		return
	}
	if err := el.writeEvent(e); err != nil {
		slog.Debug("event log write failed", "type", e.Type, "error", err)
	}
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(el.dir, 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(el.LogPath(e.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// LogPath returns the JSONL file events for key are written to. Keys such as
// "slack:C1:1700000000.0001" are flattened into a single file name.
func (el *EventLogger) LogPath(key string) string {
	if key == "" {
		return filepath.Join(el.dir, globalLog)
	}
	return filepath.Join(el.dir, fileName(key)+".jsonl")
}

var unsafeChars = strings.NewReplacer(":", "_", "/", "_", `\`, "_", "..", "_")

func fileName(key string) string {
	return unsafeChars.Replace(key)
}
