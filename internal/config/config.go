package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for parrot.
type Config struct {
	Slack   SlackConfig   `json:"slack" yaml:"slack"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Models  ModelsConfig  `json:"models" yaml:"models"`
	Events  EventsConfig  `json:"events" yaml:"events"`
	Agent   AgentConfig   `json:"agent" yaml:"agent"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// SlackConfig holds the Slack workspace credentials and delivery settings.
type SlackConfig struct {
	BotToken      string `json:"bot_token" yaml:"bot_token"`           // xoxb-...
	AppToken      string `json:"app_token" yaml:"app_token"`           // xapp-..., required for Socket Mode
	UploadChannel string `json:"upload_channel" yaml:"upload_channel"` // channel receiving /send-files uploads
	WebhookURL    string `json:"webhook_url" yaml:"webhook_url"`       // incoming webhook used by /send-url
	ReplyInThread *bool  `json:"reply_in_thread,omitempty" yaml:"reply_in_thread,omitempty"`
	Debug         bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// ThreadReplies reports whether replies are posted under the triggering message.
func (s SlackConfig) ThreadReplies() bool {
	return s.ReplyInThread == nil || *s.ReplyInThread
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	MaxUploadBytes int64    `json:"max_upload_bytes,omitempty" yaml:"max_upload_bytes,omitempty"`
	AllowedFiles   []string `json:"allowed_files,omitempty" yaml:"allowed_files,omitempty"` // doublestar patterns, empty = all
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default" yaml:"default"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver      string         `json:"driver" yaml:"driver"` // "openai", "mistral", "azure-inference", "anthropic", "gemini", "ollama"
	Model       string         `json:"model" yaml:"model"`
	BaseURL     string         `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Auth        AuthConfig     `json:"auth" yaml:"auth"`
	MaxTokens   int            `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	Timeout     Duration       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Options     map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`     // Bearer token
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size" yaml:"buffer_size"`
	LogDir     string `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
}

// AgentConfig holds conversation settings shared by every provider.
type AgentConfig struct {
	SystemPrompt       string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	MaxHistoryTurns    int      `json:"max_history_turns,omitempty" yaml:"max_history_turns,omitempty"`
	SessionIdleTimeout Duration `json:"session_idle_timeout,omitempty" yaml:"session_idle_timeout,omitempty"`
	JanitorSchedule    string   `json:"janitor_schedule,omitempty" yaml:"janitor_schedule,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // text, json
}

// Duration wraps time.Duration for JSON and YAML unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
