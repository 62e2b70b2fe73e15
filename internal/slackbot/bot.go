// Package slackbot answers Slack app mentions over Socket Mode.
package slackbot

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/dohr-michael/parrot/internal/conversation"
)

// FailureMessage is posted when a reply could not be produced.
const FailureMessage = "Something went wrong. Please try again later."

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Responder produces a streamed reply for a conversation.
type Responder interface {
	Respond(ctx context.Context, key, text string, sink conversation.Sink) error
}

// Messenger posts text to a Slack channel.
type Messenger interface {
	PostText(ctx context.Context, channel, threadTS, text string) error
}

// Mention is an app_mention reduced to what the bot needs.
type Mention struct {
	Channel  string
	User     string
	Text     string
	TS       string
	ThreadTS string
}

// Bot listens for app mentions and relays them to a Responder.
type Bot struct {
	client        *socketmode.Client
	responder     Responder
	messenger     Messenger
	threadReplies bool
	wg            sync.WaitGroup
}

// Config holds dependencies for the bot.
type Config struct {
	API           *slack.Client
	Responder     Responder
	Messenger     Messenger
	ThreadReplies bool
	Debug         bool
}

// New creates a Bot on top of a client built with an app-level token.
func New(cfg Config) *Bot {
	b := &Bot{
		responder:     cfg.Responder,
		messenger:     cfg.Messenger,
		threadReplies: cfg.ThreadReplies,
	}
	if cfg.API != nil {
		b.client = socketmode.New(cfg.API, socketmode.OptionDebug(cfg.Debug))
	}
	return b
}

// Run connects to Slack and handles events until ctx is done. In-flight
// mentions are awaited before returning.
func (b *Bot) Run(ctx context.Context) error {
	if b.client == nil {
		return errors.New("slackbot: no slack client")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- b.client.RunContext(ctx) }()

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case evt, ok := <-b.client.Events:
			if !ok {
				return nil
			}
			b.dispatch(ctx, evt)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.Info("connecting to slack")
	case socketmode.EventTypeConnected:
		slog.Info("connected to slack")
	case socketmode.EventTypeConnectionError:
		slog.Warn("slack connection failed, retrying")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			b.client.Ack(*evt.Request)
		}
		b.handleEventsAPI(ctx, apiEvent)
	}
}

func (b *Bot) handleEventsAPI(ctx context.Context, e slackevents.EventsAPIEvent) {
	if e.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := e.InnerEvent.Data.(*slackevents.AppMentionEvent)
	if !ok {
		return
	}

	m := Mention{
		Channel:  ev.Channel,
		User:     ev.User,
		Text:     ev.Text,
		TS:       ev.TimeStamp,
		ThreadTS: ev.ThreadTimeStamp,
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.HandleMention(ctx, m)
	}()
}

// HandleMention answers one mention, posting each sentence as it completes.
func (b *Bot) HandleMention(ctx context.Context, m Mention) {
	text := StripTags(m.Text)
	if text == "" {
		return
	}

	root := m.ThreadTS
	if root == "" {
		root = m.TS
	}
	replyTS := ""
	if b.threadReplies {
		replyTS = root
	}

	log := slog.With("channel", m.Channel, "thread", root, "user", m.User)
	log.Debug("mention received", "text", text)

	err := b.responder.Respond(ctx, ConversationKey(m.Channel, root), text, func(sentence string) {
		if err := b.messenger.PostText(ctx, m.Channel, replyTS, sentence); err != nil {
			log.Warn("post sentence failed", "error", err)
		}
	})
	if err == nil {
		return
	}

	log.Error("mention reply failed", "error", err)
	if ctx.Err() != nil {
		return
	}
	if err := b.messenger.PostText(ctx, m.Channel, replyTS, FailureMessage); err != nil {
		log.Warn("post failure message failed", "error", err)
	}
}

// StripTags removes Slack markup such as <@U123> and <https://...|label>.
func StripTags(text string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))
}

// ConversationKey identifies the conversation of a Slack thread.
func ConversationKey(channel, threadTS string) string {
	return "slack:" + channel + ":" + threadTS
}
