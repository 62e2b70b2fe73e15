package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/parrot/internal/config"
)

// Sampling defaults for the hosted chat drivers.
const (
	defaultMaxTokens   = 1000
	defaultTemperature = 1.0
	defaultTopP        = 1.0
)

// CreateProvider creates a Provider from a provider config.
func CreateProvider(ctx context.Context, name string, cfg config.ProviderConfig) (Provider, error) {
	driver := strings.ToLower(cfg.Driver)

	var chat model.BaseChatModel
	var modelName string
	var err error

	switch driver {
	case "openai":
		auth, aerr := ResolveAuth(cfg)
		if aerr != nil {
			return nil, fmt.Errorf("resolve auth: %w", aerr)
		}
		modelName = orDefault(cfg.Model, defaultOpenAIModel)
		chat, err = NewOpenAI(ctx, cfg, auth)
	case "mistral":
		auth, aerr := ResolveAuth(cfg)
		if aerr != nil {
			return nil, fmt.Errorf("resolve auth: %w", aerr)
		}
		modelName = orDefault(cfg.Model, defaultMistralModel)
		chat, err = NewMistral(ctx, cfg, auth)
	case "anthropic":
		auth, aerr := ResolveAuth(cfg)
		if aerr != nil {
			return nil, fmt.Errorf("resolve auth: %w", aerr)
		}
		modelName = orDefault(cfg.Model, defaultAnthropicModel)
		chat, err = NewAnthropic(ctx, cfg, auth)
	case "gemini":
		auth, aerr := ResolveAuth(cfg)
		if aerr != nil {
			return nil, fmt.Errorf("resolve auth: %w", aerr)
		}
		modelName = orDefault(cfg.Model, defaultGeminiModel)
		chat, err = NewGemini(ctx, cfg, auth)
	case "ollama":
		modelName = cfg.Model
		chat, err = NewOllama(ctx, cfg)
	case "azure-inference", "llama":
		auth, aerr := ResolveAuth(cfg)
		if aerr != nil {
			return nil, fmt.Errorf("resolve auth: %w", aerr)
		}
		return NewInference(name, cfg, auth)
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", driver, err)
	}

	return NewChatProvider(name, modelName, chat, callOptions(cfg, driver == "openai" || driver == "mistral")...), nil
}

// callOptions turns the sampling settings into per-call eino options.
// withDefaults applies the 1000/1.0/1.0 defaults; other
// drivers only receive what the config sets explicitly.
func callOptions(cfg config.ProviderConfig, withDefaults bool) []model.Option {
	var opts []model.Option

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 && withDefaults {
		maxTokens = defaultMaxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	if t, ok := pick(cfg.Temperature, defaultTemperature, withDefaults); ok {
		opts = append(opts, model.WithTemperature(float32(t)))
	}
	if p, ok := pick(cfg.TopP, defaultTopP, withDefaults); ok {
		opts = append(opts, model.WithTopP(float32(p)))
	}
	return opts
}

func pick(v *float64, def float64, withDefault bool) (float64, bool) {
	if v != nil {
		return *v, true
	}
	return def, withDefault
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
