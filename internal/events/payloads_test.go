package events

import (
	"testing"
	"time"
)

func TestTypedEvent_AssistantStream(t *testing.T) {
	payload := AssistantStreamPayload{Phase: StreamPhaseDelta, Content: "Hello there.", Index: 3}
	evt := NewTypedEvent(SourceRelay, payload)

	if evt.Type != EventAssistantStream {
		t.Fatalf("expected type %q, got %q", EventAssistantStream, evt.Type)
	}
	got, ok := GetAssistantStreamPayload(evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got != payload {
		t.Fatalf("got %+v, want %+v", got, payload)
	}
}

func TestTypedEvent_LLMCall(t *testing.T) {
	payload := LLMCallPayload{
		Phase:        "response",
		Model:        "mistral-large-2411",
		Provider:     "mistral",
		TokensInput:  120,
		TokensOutput: 40,
		Duration:     1500 * time.Millisecond,
	}
	evt := NewTypedEvent(SourceRelay, payload)

	got, ok := GetLLMCallPayload(evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Duration != payload.Duration || got.TokensInput != 120 {
		t.Fatalf("got %+v", got)
	}
}

func TestTypedEventWithSession(t *testing.T) {
	payload := UserMessagePayload{Content: "hello"}
	evt := NewTypedEventWithSession(SourceWS, payload, "sess_abc123")

	if evt.SessionID != "sess_abc123" {
		t.Fatalf("expected session_id %q, got %q", "sess_abc123", evt.SessionID)
	}
	if evt.Source != SourceWS {
		t.Fatalf("expected source %q, got %q", SourceWS, evt.Source)
	}
	got, ok := GetUserMessagePayload(evt)
	if !ok {
		t.Fatal("ExtractPayload returned false")
	}
	if got.Content != "hello" {
		t.Fatalf("expected content %q, got %q", "hello", got.Content)
	}
}

func TestExtractPayload_WrongType(t *testing.T) {
	evt := NewTypedEvent(SourceSlack, UserMessagePayload{Content: "hello"})

	if _, ok := GetAssistantMessagePayload(evt); ok {
		t.Fatal("extracting a mismatched payload type should fail")
	}
}
