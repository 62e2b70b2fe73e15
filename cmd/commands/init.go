package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/parrot/internal/config"
	"github.com/dohr-michael/parrot/internal/secrets"
)

// NewInitCommand returns the init subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Create the parrot home directory (~/.parrot)",
		Action: runInit,
	}
}

func runInit(_ context.Context, _ *cli.Command) error {
	root := config.ParrotPath()
	created := false

	for _, d := range []string{root, config.SessionsPath(), config.Default().Events.LogDir} {
		if _, err := os.Stat(d); err == nil {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", d, err)
		}
		fmt.Printf("  Created %s\n", d)
		created = true
	}

	files := []struct {
		path    string
		content string
		mode    os.FileMode
	}{
		{config.ConfigPath(), defaultConfig, 0o644},
		{config.DotenvPath(), defaultDotenv, 0o600},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), f.mode); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		fmt.Printf("  Created %s\n", f.path)
		created = true
	}

	keyPath := secrets.KeyPath()
	if _, err := os.Stat(keyPath); err != nil {
		if _, err := secrets.EnsureIdentity(keyPath); err != nil {
			return err
		}
		fmt.Printf("  Created %s\n", keyPath)
		created = true
	}

	if !created {
		fmt.Printf("%s is already set up. Nothing to do.\n", root)
		return nil
	}

	fmt.Printf(`
  parrot home ready at %s

  Next steps:
    1. parrot secret set SLACK_BOT_TOKEN   (and SLACK_APP_TOKEN, OPENAI_API_KEY, ...)
    2. Edit %s
    3. Run: parrot serve
`, root, config.ConfigPath())
	return nil
}

const defaultConfig = `{
	// parrot configuration

	"slack": {
		"upload_channel": "",
		"webhook_url": "${{ .Env.SLACK_WEBHOOK_URL }}",
		"reply_in_thread": true
	},

	"gateway": {
		"host": "127.0.0.1",
		"port": 3000
		// "allowed_files": ["*.pdf", "*.{png,jpg,jpeg}"]
	},

	"models": {
		"default": "openai",
		"providers": {
			"openai": {
				"driver": "openai",
				"model": "gpt-4o"
			}

			// "mistral":   {"driver": "mistral", "model": "mistral-large-2411"},
			// "llama":     {"driver": "azure-inference", "base_url": "https://<endpoint>.inference.ai.azure.com"},
			// "anthropic": {"driver": "anthropic", "model": "claude-sonnet-4-6", "max_tokens": 1000},
			// "gemini":    {"driver": "gemini", "model": "gemini-2.0-flash"},
			// "local":     {"driver": "ollama", "model": "llama3.1:8b", "base_url": "http://localhost:11434"}
		}
	},

	"agent": {
		"system_prompt": "You are a helpful assistant.",
		"max_history_turns": 20,
		"session_idle_timeout": "24h"
	},

	"log": {
		"level": "info",
		"format": "text"
	}
}
`

const defaultDotenv = `# parrot environment variables
# Loaded on start. Existing env vars are never overridden.
# Use "parrot secret set <NAME>" to store encrypted values.

# SLACK_BOT_TOKEN=xoxb-...
# SLACK_APP_TOKEN=xapp-...
# SLACK_WEBHOOK_URL=https://hooks.slack.com/services/...
# OPENAI_API_KEY=sk-...
`
