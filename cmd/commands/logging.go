package commands

import (
	"log/slog"
	"os"
	"strings"

	"github.com/dohr-michael/parrot/internal/config"
)

// logLevel is shared by the installed handler so a config reload can change
// verbosity in place.
var logLevel = new(slog.LevelVar)

// setupLogging installs the process logger described by cfg. debug forces
// the debug level regardless of cfg.
func setupLogging(cfg config.LogConfig, debug bool) {
	setLogLevel(cfg, debug)

	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func setLogLevel(cfg config.LogConfig, debug bool) {
	if debug {
		logLevel.Set(slog.LevelDebug)
		return
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		lvl = slog.LevelInfo
	}
	logLevel.Set(lvl)
}
