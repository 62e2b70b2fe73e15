package models

import (
	"context"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/parrot/internal/config"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaTimeout = 300 * time.Second
)

// NewOllama creates an Ollama chat model. Raw Ollama options (num_ctx,
// top_k, ...) win over the generic sampling fields.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}

	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: orDefault(cfg.BaseURL, defaultOllamaBaseURL),
		Model:   cfg.Model,
		Timeout: timeout,
		Options: ollamaOptions(cfg),
		// ndjson while streaming, json otherwise
		HTTPClient: newBackendClient("ollama", timeout, "json"),
	})
}

func ollamaOptions(cfg config.ProviderConfig) *einoollama.Options {
	opts := &einoollama.Options{NumPredict: cfg.MaxTokens}
	if cfg.Temperature != nil {
		opts.Temperature = float32(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		opts.TopP = float32(*cfg.TopP)
	}

	num := func(key string) (float64, bool) {
		v, ok := cfg.Options[key].(float64)
		return v, ok
	}
	if v, ok := num("temperature"); ok {
		opts.Temperature = float32(v)
	}
	if v, ok := num("top_p"); ok {
		opts.TopP = float32(v)
	}
	if v, ok := num("top_k"); ok {
		opts.TopK = int(v)
	}
	if v, ok := num("num_ctx"); ok {
		opts.NumCtx = int(v)
	}
	if v, ok := num("num_predict"); ok {
		opts.NumPredict = int(v)
	}
	return opts
}
