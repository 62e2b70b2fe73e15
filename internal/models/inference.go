package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/parrot/internal/config"
	"github.com/dohr-michael/parrot/internal/conversation"
)

const defaultInferenceModel = "Llama-3.3-70B-Instruct"

// InferenceProvider streams chat completions from an Azure AI Inference
// endpoint. The endpoint speaks server-sent events and terminates the
// stream with a "[DONE]" data line.
type InferenceProvider struct {
	name     string
	endpoint string
	apiKey   string
	model    string
	body     inferenceParams
	client   *http.Client
}

type inferenceParams struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type inferenceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type inferenceRequest struct {
	Model    string             `json:"model"`
	Messages []inferenceMessage `json:"messages"`
	Stream   bool               `json:"stream"`
	inferenceParams
}

type inferenceChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewInference creates a provider for an Azure AI Inference deployment.
// base_url is the deployment endpoint; /chat/completions is appended.
func NewInference(name string, cfg config.ProviderConfig, auth ResolvedAuth) (*InferenceProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base_url is required", name)
	}

	params := inferenceParams{
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		params.Temperature = *cfg.Temperature
	}
	if cfg.TopP != nil {
		params.TopP = *cfg.TopP
	}

	timeout := 5 * time.Minute
	if cfg.Timeout.Duration() > 0 {
		timeout = cfg.Timeout.Duration()
	}

	return &InferenceProvider{
		name:     name,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:   auth.Value,
		model:    orDefault(cfg.Model, defaultInferenceModel),
		body:     params,
		client:   newBackendClient(name, timeout, "event-stream"),
	}, nil
}

func (p *InferenceProvider) Name() string  { return p.name }
func (p *InferenceProvider) Model() string { return p.model }

// StreamResponse posts the conversation and returns the SSE reply stream.
func (p *InferenceProvider) StreamResponse(ctx context.Context, history []conversation.Turn) (_ FragmentReader, err error) {
	msgs := toSchemaMessages(history)
	if len(msgs) == 0 {
		return nil, ErrEmptyHistory
	}

	ctx = callbacks.EnsureRunInfo(ctx, "AzureInference", components.ComponentOfChatModel)
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{
		Messages: msgs,
		Config:   &model.Config{Model: p.model},
	})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	reqBody := inferenceRequest{
		Model:           p.model,
		Stream:          true,
		inferenceParams: p.body,
	}
	for _, m := range msgs {
		reqBody.Messages = append(reqBody.Messages, inferenceMessage{Role: string(m.Role), Content: m.Content})
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("api-key", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, HandleError(err)
	}

	return &inferenceReader{provider: p.name, dec: ssestream.NewDecoder(resp)}, nil
}

type inferenceReader struct {
	provider string
	dec      ssestream.Decoder
	usage    Usage
	done     bool
}

func (r *inferenceReader) Recv() (string, error) {
	if r.done {
		return "", io.EOF
	}
	for r.dec.Next() {
		data := bytes.TrimSpace(r.dec.Event().Data)
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			r.done = true
			return "", io.EOF
		}

		var chunk inferenceChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			slog.Debug("skipping malformed stream chunk", "provider", r.provider, "error", err)
			continue
		}
		if chunk.Usage != nil {
			r.usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}

	r.done = true
	if err := r.dec.Err(); err != nil {
		return "", HandleError(err)
	}
	return "", io.EOF
}

func (r *inferenceReader) Usage() Usage { return r.usage }

func (r *inferenceReader) Close() error {
	return r.dec.Close()
}
