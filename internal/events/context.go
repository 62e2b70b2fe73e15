package events

import "context"

type conversationKey struct{}

// ContextWithConversation tags ctx with a conversation key (slack:C1:1700000000.0001,
// ws:<id>). Events published on behalf of a call use it as their session ID.
func ContextWithConversation(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationKey{}, key)
}

// ConversationFromContext returns the key set by ContextWithConversation, or "".
func ConversationFromContext(ctx context.Context) string {
	key, _ := ctx.Value(conversationKey{}).(string)
	return key
}
