// Package relay connects conversations to a model provider and streams the
// reply back sentence by sentence.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/dohr-michael/parrot/internal/callbacks"
	"github.com/dohr-michael/parrot/internal/conversation"
	"github.com/dohr-michael/parrot/internal/events"
	"github.com/dohr-michael/parrot/internal/models"
	"github.com/dohr-michael/parrot/internal/sessions"
)

// ErrEmptyMessage is returned when the user text is blank.
var ErrEmptyMessage = errors.New("empty message")

const titleMaxLen = 60

// ProviderSource resolves the provider used for new replies.
type ProviderSource interface {
	Default(ctx context.Context) (models.Provider, error)
}

// Options are the hot-reloadable conversation settings.
type Options struct {
	SystemPrompt    string
	MaxHistoryTurns int
}

// Config holds dependencies for the relay.
type Config struct {
	Providers ProviderSource
	Store     sessions.Store // nil keeps conversations in memory only
	Bus       *events.Bus    // nil disables events
	Options   Options
}

// Relay owns one conversation per key and answers user messages through
// the configured provider.
type Relay struct {
	store    sessions.Store
	bus      *events.Bus
	handlers []einocb.Handler

	mu        sync.RWMutex
	providers ProviderSource
	opts      Options
	convs     map[string]*conv

	now func() time.Time
}

type conv struct {
	mu         sync.Mutex
	key        string
	session    *sessions.Session
	history    *conversation.History
	persisted  int
	lastActive time.Time
}

// New creates a Relay.
func New(cfg Config) *Relay {
	r := &Relay{
		store:     cfg.Store,
		bus:       cfg.Bus,
		providers: cfg.Providers,
		opts:      cfg.Options,
		convs:     make(map[string]*conv),
		now:       time.Now,
	}
	if cfg.Bus != nil {
		r.handlers = append(r.handlers, callbacks.NewEventBusHandler(cfg.Bus, events.SourceRelay))
	}
	return r
}

// Configure swaps the conversation settings. Open conversations keep the
// system prompt they started with.
func (r *Relay) Configure(opts Options) {
	r.mu.Lock()
	r.opts = opts
	r.mu.Unlock()
}

// SetProviders swaps the provider source used for subsequent replies.
func (r *Relay) SetProviders(p ProviderSource) {
	r.mu.Lock()
	r.providers = p
	r.mu.Unlock()
}

func (r *Relay) settings() (Options, ProviderSource) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts, r.providers
}

// Respond appends text as a user turn to the conversation identified by key,
// streams the model reply and calls sink once per completed sentence.
// On failure the unfinished sentence is discarded and the error returned;
// sentences already delivered stay in the history.
func (r *Relay) Respond(ctx context.Context, key, text string, sink conversation.Sink) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c, err := r.conversation(key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = r.now()

	// events are keyed by conversation so clients can follow their own replies
	sessionID := c.key
	ctx = events.ContextWithConversation(ctx, sessionID)

	if err := c.history.Append(conversation.Turn{Role: conversation.RoleUser, Content: text}); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	r.publish(events.SourceRelay, events.UserMessagePayload{Content: text}, sessionID)
	r.persist(c)

	opts, providers := r.settings()
	if providers == nil {
		return r.fail(c, errors.New("no model provider configured"))
	}
	provider, err := providers.Default(ctx)
	if err != nil {
		return r.fail(c, fmt.Errorf("resolve provider: %w", err))
	}

	window := c.history.Window(opts.MaxHistoryTurns)
	start := r.now()

	reader, err := provider.StreamResponse(callbacks.Attach(ctx, provider.Name(), r.handlers...), window)
	if err != nil {
		r.publishCall(provider, len(window), models.Usage{}, r.now().Sub(start), err, sessionID)
		return r.fail(c, fmt.Errorf("%s: %w", provider.Name(), err))
	}
	defer reader.Close()

	var sentences []string
	r.publish(events.SourceRelay, events.AssistantStreamPayload{Phase: events.StreamPhaseStart}, sessionID)

	agg := conversation.NewAggregator(func(sentence string) {
		if sink != nil {
			sink(sentence)
		}
		r.publish(events.SourceRelay, events.AssistantStreamPayload{
			Phase:   events.StreamPhaseDelta,
			Content: sentence,
			Index:   len(sentences),
		}, sessionID)
		sentences = append(sentences, sentence)
	}, c.history)

	streamErr := pump(ctx, reader, agg)
	if streamErr == nil {
		agg.Flush()
	}

	r.publish(events.SourceRelay, events.AssistantStreamPayload{Phase: events.StreamPhaseEnd, Index: len(sentences)}, sessionID)
	r.publishCall(provider, len(window), reader.Usage(), r.now().Sub(start), streamErr, sessionID)

	if c.session != nil {
		c.session.Model = provider.Model()
		c.session.TokenUsage.Input += reader.Usage().PromptTokens
		c.session.TokenUsage.Output += reader.Usage().CompletionTokens
	}
	r.persist(c)

	if streamErr != nil {
		return r.fail(c, fmt.Errorf("%s: %w", provider.Name(), streamErr))
	}

	r.publish(events.SourceRelay, events.AssistantMessagePayload{
		Content:   strings.Join(sentences, " "),
		Sentences: len(sentences),
	}, sessionID)
	return nil
}

// pump feeds fragments to agg until the reader is exhausted. The pending
// buffer is left untouched on error.
func pump(ctx context.Context, reader models.FragmentReader, agg *conversation.Aggregator) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frag, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		agg.Consume(frag)
	}
}

func (r *Relay) fail(c *conv, err error) error {
	slog.Error("relay response failed", "key", c.key, "error", err)
	r.publish(events.SourceRelay, events.AssistantMessagePayload{Error: err.Error()}, c.key)
	return err
}

// History returns a copy of the transcript for key, or nil if the
// conversation is not loaded.
func (r *Relay) History(key string) []conversation.Turn {
	r.mu.RLock()
	c, ok := r.convs[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.history.Turns()
}

// Len returns the number of open conversations.
func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.convs)
}

// conversation returns the conversation for key, resuming a persisted
// session or opening a new one.
func (r *Relay) conversation(key string) (*conv, error) {
	r.mu.RLock()
	c, ok := r.convs[key]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[key]; ok {
		return c, nil
	}

	c, err := r.open(key)
	if err != nil {
		return nil, err
	}
	r.convs[key] = c
	return c, nil
}

// open must be called with r.mu held.
func (r *Relay) open(key string) (*conv, error) {
	c := &conv{key: key, lastActive: r.now()}

	if r.store != nil {
		s, err := r.store.FindByKey(key)
		switch {
		case err == nil:
			msgs, err := r.store.LoadMessages(s.ID)
			if err != nil {
				return nil, fmt.Errorf("load session %s: %w", s.ID, err)
			}
			c.session = s
			c.history = restore(msgs, r.opts.SystemPrompt)
			c.persisted = c.history.Len()
			slog.Debug("session resumed", "key", key, "session", s.ID, "turns", len(msgs))
			return c, nil
		case !errors.Is(err, sessions.ErrSessionNotFound):
			return nil, fmt.Errorf("find session: %w", err)
		}

		s, err = r.store.Create(key)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		c.session = s
	}

	c.history = conversation.NewHistory(r.opts.SystemPrompt)
	r.publish(events.SourceRelay, events.SessionCreatedPayload{Key: key, SessionID: c.sessionID()}, key)
	return c, nil
}

func restore(msgs []sessions.Message, systemPrompt string) *conversation.History {
	var h *conversation.History
	if len(msgs) > 0 && msgs[0].Role == string(conversation.RoleSystem) {
		h = conversation.NewHistory("")
	} else {
		h = conversation.NewHistory(systemPrompt)
	}
	for _, m := range msgs {
		if err := h.Append(m.Turn()); err != nil {
			slog.Warn("skipping stored turn", "role", m.Role, "error", err)
		}
	}
	return h
}

// persist writes turns not yet stored and refreshes the session metadata.
// Persistence failures are logged; the in-memory conversation stays usable.
func (r *Relay) persist(c *conv) {
	if r.store == nil || c.session == nil {
		return
	}

	turns := c.history.Since(c.persisted)
	for _, t := range turns {
		if err := r.store.AppendMessage(c.session.ID, sessions.NewMessage(t)); err != nil {
			slog.Warn("persist turn failed", "session", c.session.ID, "error", err)
			return
		}
		c.persisted++
		c.session.MessageCount++
		if c.session.Title == "" && t.Role == conversation.RoleUser {
			c.session.Title = truncate(t.Content, titleMaxLen)
		}
	}

	c.session.UpdatedAt = r.now()
	if err := r.store.UpdateMeta(c.session); err != nil {
		slog.Warn("update session meta failed", "session", c.session.ID, "error", err)
	}
}

func (c *conv) sessionID() string {
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

func (r *Relay) publish(source events.EventSource, payload events.EventPayload, sessionID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.NewTypedEventWithSession(source, payload, sessionID))
}

func (r *Relay) publishCall(p models.Provider, messages int, usage models.Usage, d time.Duration, err error, sessionID string) {
	payload := events.LLMCallPayload{
		Phase:        "response",
		Model:        p.Model(),
		Provider:     p.Name(),
		MessageCount: messages,
		TokensInput:  usage.PromptTokens,
		TokensOutput: usage.CompletionTokens,
		Duration:     d,
	}
	if err != nil {
		payload.Phase = "error"
		payload.Error = err.Error()
	}
	r.publish(events.SourceRelay, payload, sessionID)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
