package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestReloader_Current(t *testing.T) {
	cfg := &Config{}
	cfg.Gateway.Port = 9999

	r := NewReloader("", "", cfg)
	got := r.Current()
	if got.Gateway.Port != 9999 {
		t.Errorf("Current().Gateway.Port = %d, want 9999", got.Gateway.Port)
	}
}

func TestReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	dotenvPath := filepath.Join(dir, ".env")
	configPath := filepath.Join(dir, "config.jsonc")

	t.Setenv("PARROT_RELOAD_PROMPT", "initial")
	if err := os.WriteFile(dotenvPath, []byte("PARROT_RELOAD_PROMPT=initial\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	configContent := `{
		"agent": {"system_prompt": "${{ .Env.PARROT_RELOAD_PROMPT }}"},
		"models": {"default": "test", "providers": {}}
	}`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := &Config{}
	r := NewReloader(configPath, dotenvPath, initial)

	var callCount atomic.Int32
	var seenPrompt atomic.Value
	r.OnReload(func(cfg *Config) {
		callCount.Add(1)
		seenPrompt.Store(cfg.Agent.SystemPrompt)
	})

	// Edit .env: the reload must override the existing value
	if err := os.WriteFile(dotenvPath, []byte("PARROT_RELOAD_PROMPT=reloaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if callCount.Load() != 1 {
		t.Errorf("listener called %d times, want 1", callCount.Load())
	}
	if got := seenPrompt.Load(); got != "reloaded" {
		t.Errorf("listener saw system prompt %v, want 'reloaded'", got)
	}
	if r.Current() == initial {
		t.Error("Current() still returns initial config after reload")
	}
}

func TestReloader_ReloadMissingDotenv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	dotenvPath := filepath.Join(dir, ".env") // does not exist

	if err := os.WriteFile(configPath, []byte(`{"gateway": {"port": 18420}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReloader(configPath, dotenvPath, &Config{})
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload with missing .env: %v", err)
	}
}

func TestReloader_ReloadBrokenConfigKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{"gateway": `), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := &Config{}
	r := NewReloader(configPath, filepath.Join(dir, ".env"), initial)

	called := false
	r.OnReload(func(*Config) { called = true })

	if err := r.Reload(); err == nil {
		t.Fatal("expected error for broken config")
	}
	if called {
		t.Error("listener must not run on failed reload")
	}
	if r.Current() != initial {
		t.Error("failed reload replaced the current config")
	}
}

func TestReloader_DotenvHookRunsBeforeLoad(t *testing.T) {
	dir := t.TempDir()
	dotenvPath := filepath.Join(dir, ".env")
	configPath := filepath.Join(dir, "config.jsonc")

	t.Setenv("PARROT_HOOK_PROMPT", "")
	if err := os.WriteFile(dotenvPath, []byte("PARROT_HOOK_PROMPT=sealed\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte(`{"agent": {"system_prompt": "${{ .Env.PARROT_HOOK_PROMPT }}"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReloader(configPath, dotenvPath, &Config{})
	r.OnDotenv(func() error {
		if os.Getenv("PARROT_HOOK_PROMPT") == "sealed" {
			os.Setenv("PARROT_HOOK_PROMPT", "opened")
		}
		return nil
	})

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := r.Current().Agent.SystemPrompt; got != "opened" {
		t.Errorf("system prompt = %q, want opened", got)
	}
}
