package storage

import (
	"testing"
	"time"

	"github.com/dohr-michael/parrot/internal/events"
)

func publishLLMEvent(bus *events.Bus, provider, phase string, tokensIn, tokensOut int, errMsg string) {
	payload := events.LLMCallPayload{
		Phase:        phase,
		Model:        "test-model",
		Provider:     provider,
		TokensInput:  tokensIn,
		TokensOutput: tokensOut,
		Duration:     time.Second,
		Error:        errMsg,
	}
	bus.Publish(events.NewTypedEventWithSession(events.SourceRelay, payload, "slack:C1:1.0"))
}

func TestUsageTracker_Accumulation(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	ut := NewUsageTracker(bus)
	defer ut.Close()

	publishLLMEvent(bus, "openai", "response", 100, 50, "")
	publishLLMEvent(bus, "openai", "response", 200, 80, "")
	publishLLMEvent(bus, "anthropic", "error", 0, 0, "boom")

	time.Sleep(150 * time.Millisecond)

	totals := ut.Totals()
	if len(totals) != 2 {
		t.Fatalf("got %d providers, want 2: %+v", len(totals), totals)
	}

	anth, oai := totals[0], totals[1]
	if oai.Provider != "openai" || oai.Calls != 2 {
		t.Errorf("openai = %+v", oai)
	}
	if oai.TokensInput != 300 || oai.TokensOutput != 130 {
		t.Errorf("openai tokens = %d/%d, want 300/130", oai.TokensInput, oai.TokensOutput)
	}
	if oai.Duration != 2*time.Second {
		t.Errorf("openai duration = %v", oai.Duration)
	}
	if anth.Errors != 1 || anth.Calls != 1 {
		t.Errorf("anthropic = %+v", anth)
	}
}

func TestUsageTracker_PhaseFiltering(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	ut := NewUsageTracker(bus)
	defer ut.Close()

	publishLLMEvent(bus, "openai", "request", 100, 0, "")
	bus.Publish(events.NewTypedEvent(events.SourceWS, events.UserMessagePayload{Content: "hi"}))

	time.Sleep(150 * time.Millisecond)

	if totals := ut.Totals(); len(totals) != 0 {
		t.Errorf("expected no totals, got %+v", totals)
	}
}

func TestUsageTracker_Close(t *testing.T) {
	bus := events.NewBus(64)
	defer bus.Close()

	ut := NewUsageTracker(bus)
	ut.Close()

	publishLLMEvent(bus, "openai", "response", 1, 1, "")
	time.Sleep(100 * time.Millisecond)

	if totals := ut.Totals(); len(totals) != 0 {
		t.Errorf("closed tracker still counting: %+v", totals)
	}
}
