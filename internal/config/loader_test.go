package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"slack": {
		"bot_token": "${{ .Env.TEST_SLACK_BOT }}",
		"upload_channel": "C123",
		"reply_in_thread": false,
	},
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"models": {
		"default": "gpt",
		"providers": {
			"gpt": {
				"driver": "openai",
				"model": "gpt-4o",
				"auth": {
					"api_key": "${{ .Env.TEST_OPENAI_KEY }}"
				},
				"max_tokens": 1000,
				"temperature": 1.0,
				"timeout": "30s"
			}
		}
	}
}`
	path := writeConfig(t, "config.jsonc", content)

	t.Setenv("TEST_SLACK_BOT", "xoxb-test")
	t.Setenv("TEST_OPENAI_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Slack.BotToken != "xoxb-test" {
		t.Errorf("expected bot token xoxb-test, got %s", cfg.Slack.BotToken)
	}
	if cfg.Slack.ThreadReplies() {
		t.Error("expected reply_in_thread=false to disable thread replies")
	}
	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}

	p, ok := cfg.Models.Providers["gpt"]
	if !ok {
		t.Fatal("expected gpt provider")
	}
	if p.Auth.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", p.Auth.APIKey)
	}
	if p.MaxTokens != 1000 {
		t.Errorf("expected max_tokens 1000, got %d", p.MaxTokens)
	}
	if p.Temperature == nil || *p.Temperature != 1.0 {
		t.Errorf("expected temperature 1.0, got %v", p.Temperature)
	}
	if p.Timeout.Duration() != 30*time.Second {
		t.Errorf("expected timeout 30s, got %s", p.Timeout.Duration())
	}
}

func TestLoadYAML(t *testing.T) {
	content := `
gateway:
  port: 8080
models:
  default: llama
  providers:
    llama:
      driver: azure-inference
      base_url: https://example.services.ai.azure.com/models
      timeout: 2m
agent:
  max_history_turns: 4
`
	path := writeConfig(t, "config.yaml", content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Gateway.Port)
	}
	if cfg.Models.Providers["llama"].Driver != "azure-inference" {
		t.Errorf("unexpected driver %q", cfg.Models.Providers["llama"].Driver)
	}
	if cfg.Models.Providers["llama"].Timeout.Duration() != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %s", cfg.Models.Providers["llama"].Timeout.Duration())
	}
	if cfg.Agent.MaxHistoryTurns != 4 {
		t.Errorf("expected max_history_turns 4, got %d", cfg.Agent.MaxHistoryTurns)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARROT_PATH", "/tmp/parrot-test")
	path := writeConfig(t, "config.jsonc", `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"host", cfg.Gateway.Host, "127.0.0.1"},
		{"port", cfg.Gateway.Port, 3000},
		{"max_upload_bytes", cfg.Gateway.MaxUploadBytes, int64(32 << 20)},
		{"buffer_size", cfg.Events.BufferSize, 1024},
		{"log_dir", cfg.Events.LogDir, "/tmp/parrot-test/logs"},
		{"system_prompt", cfg.Agent.SystemPrompt, DefaultSystemPrompt},
		{"max_history_turns", cfg.Agent.MaxHistoryTurns, 20},
		{"session_idle_timeout", cfg.Agent.SessionIdleTimeout.Duration(), 24 * time.Hour},
		{"janitor_schedule", cfg.Agent.JanitorSchedule, "@every 10m"},
		{"log_level", cfg.Log.Level, "info"},
		{"log_format", cfg.Log.Format, "text"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if !cfg.Slack.ThreadReplies() {
		t.Error("thread replies should default to true")
	}
}

func TestLoadSlackEnvFallback(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("SLACK_APP_TOKEN", "xapp-env")
	path := writeConfig(t, "config.jsonc", `{"slack": {"upload_channel": "C1"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Slack.BotToken != "xoxb-env" || cfg.Slack.AppToken != "xapp-env" {
		t.Errorf("tokens not taken from env: %+v", cfg.Slack)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := writeConfig(t, "config.jsonc", `{"gateway": `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for truncated config")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.jsonc")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
