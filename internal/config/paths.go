package config

import (
	"os"
	"path/filepath"
)

// ParrotPath returns the root directory for parrot data.
// It uses $PARROT_PATH if set, otherwise defaults to ~/.parrot.
func ParrotPath() string {
	if v := os.Getenv("PARROT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".parrot")
	}
	return filepath.Join(home, ".parrot")
}

// ConfigPath returns the path to the parrot config file.
func ConfigPath() string {
	return filepath.Join(ParrotPath(), "config.jsonc")
}

// DotenvPath returns the path to the parrot .env file.
func DotenvPath() string {
	return filepath.Join(ParrotPath(), ".env")
}

// SessionsPath returns the directory holding persisted conversations.
func SessionsPath() string {
	return filepath.Join(ParrotPath(), "sessions")
}

// HeartbeatPath returns the path of the liveness file written by `parrot serve`.
func HeartbeatPath() string {
	return filepath.Join(ParrotPath(), "heartbeat.json")
}
