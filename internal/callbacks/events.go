// Package callbacks bridges eino model callbacks to the event bus.
package callbacks

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	ub "github.com/cloudwego/eino/utils/callbacks"

	"github.com/dohr-michael/parrot/internal/events"
)

// NewEventBusHandler returns a handler publishing an internal.llm.call
// "request" event each time a chat model starts. The conversation key is
// read from the context (events.ContextWithConversation).
func NewEventBusHandler(bus *events.Bus, source events.EventSource) callbacks.Handler {
	if source == "" {
		source = events.SourceRelay
	}

	modelHandler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			payload := events.LLMCallPayload{
				Phase:        "request",
				Provider:     info.Name,
				MessageCount: len(input.Messages),
			}
			if input.Config != nil {
				payload.Model = input.Config.Model
			}
			bus.Publish(events.NewTypedEventWithSession(source, payload, events.ConversationFromContext(ctx)))
			return ctx
		},
	}

	return ub.NewHandlerHelper().ChatModel(modelHandler).Handler()
}

// Attach returns ctx carrying handlers for one model run named name.
// Models that report callbacks (every eino chat model) invoke them.
func Attach(ctx context.Context, name string, handlers ...callbacks.Handler) context.Context {
	if len(handlers) == 0 {
		return ctx
	}
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      name,
		Component: components.ComponentOfChatModel,
	}, handlers...)
}
