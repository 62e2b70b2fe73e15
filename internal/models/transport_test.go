package models

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dohr-michael/parrot/internal/config"
)

func backendServer(status int, contentType, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestBackendTransport_Accepts(t *testing.T) {
	tests := []struct {
		name        string
		accept      []string
		contentType string
	}{
		{"ollama json", []string{"json"}, "application/json"},
		{"ollama ndjson stream", []string{"json"}, "application/x-ndjson"},
		{"sse stream", []string{"event-stream"}, "text/event-stream; charset=utf-8"},
		{"no accept list", nil, "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendServer(http.StatusOK, tt.contentType, "payload")
			defer srv.Close()

			tr := &backendTransport{inner: http.DefaultTransport, provider: "ollama", accept: tt.accept}
			req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
			resp, err := tr.RoundTrip(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if string(body) != "payload" {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestBackendTransport_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantStatus  int
	}{
		{"plain text proxy page", http.StatusOK, "text/plain", "no available server", 0},
		{"html on sse endpoint", http.StatusOK, "text/html", "<h1>bad gateway</h1>", 0},
		{"server error", http.StatusServiceUnavailable, "", "service unavailable", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendServer(tt.status, tt.contentType, tt.body)
			defer srv.Close()

			tr := &backendTransport{inner: http.DefaultTransport, provider: "llama", accept: []string{"json", "event-stream"}}
			req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
			_, err := tr.RoundTrip(req)

			var unavail *ErrModelUnavailable
			if !errors.As(err, &unavail) {
				t.Fatalf("expected ErrModelUnavailable, got %T: %v", err, err)
			}
			if unavail.Provider != "llama" || unavail.Status != tt.wantStatus || unavail.Body != tt.body {
				t.Errorf("err = %+v", unavail)
			}
		})
	}
}

func TestBackendTransport_ConnectionError(t *testing.T) {
	client := newBackendClient("ollama", 0, "json")
	_, err := client.Get("http://127.0.0.1:1") // nothing listening

	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrModelUnavailable, got %T: %v", err, err)
	}
	if unavail.Cause == nil {
		t.Error("expected non-nil Cause for connection failure")
	}
}

func TestOllamaOptions(t *testing.T) {
	temp := 0.2
	opts := ollamaOptions(config.ProviderConfig{
		MaxTokens:   256,
		Temperature: &temp,
		Options:     map[string]any{"num_ctx": 8192.0, "top_k": 40.0, "temperature": 0.7},
	})

	if opts.NumPredict != 256 || opts.NumCtx != 8192 || opts.TopK != 40 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Temperature != float32(0.7) {
		t.Errorf("raw option should win, temperature = %v", opts.Temperature)
	}
}
