package models

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/parrot/internal/conversation"
)

// Usage is the token accounting reported by a provider for one response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// FragmentReader yields the text fragments of one streamed response.
// Recv returns io.EOF once the stream is exhausted.
type FragmentReader interface {
	Recv() (string, error)
	Usage() Usage
	Close() error
}

// Provider streams a reply to a conversation from one hosted model.
type Provider interface {
	Name() string
	Model() string
	StreamResponse(ctx context.Context, history []conversation.Turn) (FragmentReader, error)
}

// ErrEmptyHistory is returned when there is nothing to send.
var ErrEmptyHistory = errors.New("empty conversation history")

// ChatProvider adapts an eino chat model to Provider.
type ChatProvider struct {
	name  string
	model string
	chat  model.BaseChatModel
	opts  []model.Option
}

// NewChatProvider wraps chat; opts are applied to every Stream call.
func NewChatProvider(name, modelName string, chat model.BaseChatModel, opts ...model.Option) *ChatProvider {
	return &ChatProvider{name: name, model: modelName, chat: chat, opts: opts}
}

func (p *ChatProvider) Name() string  { return p.name }
func (p *ChatProvider) Model() string { return p.model }

// StreamResponse sends history to the model and returns its reply stream.
func (p *ChatProvider) StreamResponse(ctx context.Context, history []conversation.Turn) (FragmentReader, error) {
	msgs := toSchemaMessages(history)
	if len(msgs) == 0 {
		return nil, ErrEmptyHistory
	}

	sr, err := p.chat.Stream(ctx, msgs, p.opts...)
	if err != nil {
		return nil, HandleError(err)
	}
	return &chatReader{sr: sr}, nil
}

type chatReader struct {
	sr    *schema.StreamReader[*schema.Message]
	usage Usage
}

func (r *chatReader) Recv() (string, error) {
	for {
		msg, err := r.sr.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", HandleError(err)
		}
		if msg == nil {
			continue
		}
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			u := msg.ResponseMeta.Usage
			if u.PromptTokens > 0 {
				r.usage.PromptTokens = u.PromptTokens
			}
			if u.CompletionTokens > 0 {
				r.usage.CompletionTokens = u.CompletionTokens
			}
		}
		if msg.Content == "" {
			continue
		}
		return msg.Content, nil
	}
}

func (r *chatReader) Usage() Usage { return r.usage }

func (r *chatReader) Close() error {
	r.sr.Close()
	return nil
}

// toSchemaMessages converts turns to eino messages. Consecutive turns of the
// same role (a reply stored sentence by sentence) are merged into one message
// since several providers require alternating roles.
func toSchemaMessages(turns []conversation.Turn) []*schema.Message {
	var out []*schema.Message
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := toSchemaRole(t.Role)
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += " " + t.Content
			continue
		}
		out = append(out, &schema.Message{Role: role, Content: t.Content})
	}
	return out
}

func toSchemaRole(r conversation.Role) schema.RoleType {
	switch r {
	case conversation.RoleSystem:
		return schema.System
	case conversation.RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}
