package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dohr-michael/parrot/internal/config"
	"github.com/dohr-michael/parrot/internal/conversation"
)

func sseServer(t *testing.T, status int, lines []string, seen *inferenceRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("api-key") != "secret" || r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, "model overloaded")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
	}))
}

func newTestInference(t *testing.T, url string) *InferenceProvider {
	t.Helper()
	p, err := NewInference("llama", config.ProviderConfig{BaseURL: url + "/"}, ResolvedAuth{Value: "secret"})
	if err != nil {
		t.Fatalf("NewInference: %v", err)
	}
	return p
}

var hiTurns = []conversation.Turn{
	{Role: conversation.RoleSystem, Content: "You are a helpful assistant."},
	{Role: conversation.RoleUser, Content: "hi"},
}

func TestInference_StreamsUntilDone(t *testing.T) {
	var seen inferenceRequest
	srv := sseServer(t, http.StatusOK, []string{
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`not json`,
		`{"choices":[]}`,
		`{"choices":[{"delta":{"content":" world."}}],"usage":{"prompt_tokens":9,"completion_tokens":2}}`,
		`[DONE]`,
		`{"choices":[{"delta":{"content":"after done"}}]}`,
	}, &seen)
	defer srv.Close()

	r, err := newTestInference(t, srv.URL).StreamResponse(context.Background(), hiTurns)
	if err != nil {
		t.Fatalf("StreamResponse: %v", err)
	}
	defer r.Close()

	got := strings.Join(drain(t, r), "")
	if got != "Hello world." {
		t.Fatalf("text = %q", got)
	}
	if u := r.Usage(); u.PromptTokens != 9 || u.CompletionTokens != 2 {
		t.Errorf("usage = %+v", u)
	}

	if !seen.Stream || seen.Model != defaultInferenceModel {
		t.Errorf("request = %+v", seen)
	}
	if seen.MaxTokens != 1000 || seen.Temperature != 1.0 || seen.TopP != 1.0 {
		t.Errorf("sampling = %+v", seen.inferenceParams)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", seen.Messages)
	}
}

func TestInference_EOFWithoutDone(t *testing.T) {
	srv := sseServer(t, http.StatusOK, []string{`{"choices":[{"delta":{"content":"partial"}}]}`}, nil)
	defer srv.Close()

	r, err := newTestInference(t, srv.URL).StreamResponse(context.Background(), hiTurns)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if got := drain(t, r); len(got) != 1 || got[0] != "partial" {
		t.Fatalf("fragments = %q", got)
	}
}

func TestInference_Non200(t *testing.T) {
	srv := sseServer(t, http.StatusServiceUnavailable, nil, nil)
	defer srv.Close()

	_, err := newTestInference(t, srv.URL).StreamResponse(context.Background(), hiTurns)
	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrModelUnavailable, got %T: %v", err, err)
	}
	if unavail.Status != http.StatusServiceUnavailable || unavail.Body != "model overloaded" {
		t.Errorf("err = %+v", unavail)
	}
}

func TestInference_RequiresBaseURL(t *testing.T) {
	if _, err := NewInference("llama", config.ProviderConfig{}, ResolvedAuth{}); err == nil {
		t.Fatal("expected error without base_url")
	}
}
