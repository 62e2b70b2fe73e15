package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/parrot/internal/config"
	"github.com/dohr-michael/parrot/internal/events"
	"github.com/dohr-michael/parrot/internal/gateway"
	"github.com/dohr-michael/parrot/internal/heartbeat"
	"github.com/dohr-michael/parrot/internal/models"
	"github.com/dohr-michael/parrot/internal/relay"
	"github.com/dohr-michael/parrot/internal/secrets"
	"github.com/dohr-michael/parrot/internal/sessions"
	"github.com/dohr-michael/parrot/internal/slackapi"
	"github.com/dohr-michael/parrot/internal/slackbot"
	"github.com/dohr-michael/parrot/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the Slack listener and the upload gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.BoolFlag{
				Name:  "no-slack",
				Usage: "Run the gateway without the Slack listener",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	if err := decryptSecrets(); err != nil {
		return err
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = config.Default()
		setupLogging(cfg.Log, cmd.Bool("debug"))
		slog.Warn("config not found, using defaults", "path", configPath)
	} else {
		setupLogging(cfg.Log, cmd.Bool("debug"))
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	eventLog := storage.NewEventLogger(cfg.Events.LogDir, bus)
	defer eventLog.Close()
	usage := storage.NewUsageTracker(bus)
	defer usage.Close()

	// Relay
	registry := models.NewRegistry(cfg.Models)
	store := sessions.NewFileStore(config.SessionsPath())
	rl := relay.New(relay.Config{
		Providers: registry,
		Store:     store,
		Bus:       bus,
		Options:   relayOptions(cfg),
	})

	janitor, err := relay.NewJanitor(rl, cfg.Agent.JanitorSchedule, cfg.Agent.SessionIdleTimeout.Duration())
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	runner := relay.NewEventRunner(rl, bus)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	// Slack
	slackClient := slackapi.New(cfg.Slack)
	slackEnabled := !cmd.Bool("no-slack") && cfg.Slack.BotToken != "" && cfg.Slack.AppToken != ""
	if slackEnabled {
		bot := slackbot.New(slackbot.Config{
			API:           slackClient.API(),
			Responder:     rl,
			Messenger:     slackClient,
			ThreadReplies: cfg.Slack.ThreadReplies(),
			Debug:         cfg.Slack.Debug,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				slog.Error("slack listener stopped", "error", err)
			}
		}()
		slog.Info("slack listener started")
	} else if !cmd.Bool("no-slack") {
		slog.Warn("slack listener disabled: SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required")
	}

	// Gateway
	server := gateway.NewServer(gateway.Config{
		Bus:            bus,
		Store:          store,
		Slack:          slackClient,
		Usage:          usage,
		Host:           cfg.Gateway.Host,
		Port:           cfg.Gateway.Port,
		MaxUploadBytes: cfg.Gateway.MaxUploadBytes,
		AllowedFiles:   cfg.Gateway.AllowedFiles,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	hb := heartbeat.NewWriter(config.HeartbeatPath(), heartbeat.Info{
		Addr:      net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port)),
		Slack:     slackEnabled,
		Providers: registry.Names(),
	})
	hb.Start()
	defer hb.Stop()

	// Hot reload on SIGHUP
	reloader := config.NewReloader(configPath, config.DotenvPath(), cfg)
	reloader.OnDotenv(decryptSecrets)
	reloader.OnReload(func(next *config.Config) {
		setLogLevel(next.Log, cmd.Bool("debug"))
		rl.Configure(relayOptions(next))
		rl.SetProviders(models.NewRegistry(next.Models))
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if err := reloader.Reload(); err != nil {
				slog.Error("reload failed, keeping current config", "error", err)
			}
		case <-ctx.Done():
			slog.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			stop()
			return fmt.Errorf("gateway: %w", err)
		}
	}
}

func relayOptions(cfg *config.Config) relay.Options {
	return relay.Options{
		SystemPrompt:    cfg.Agent.SystemPrompt,
		MaxHistoryTurns: cfg.Agent.MaxHistoryTurns,
	}
}

// decryptSecrets opens ENC[age:...] environment values with the local age
// key. It is a no-op when nothing is encrypted.
func decryptSecrets() error {
	if !secrets.HasEncrypted() {
		return nil
	}
	id, err := secrets.LoadIdentity(secrets.KeyPath())
	if err != nil {
		return fmt.Errorf("encrypted secrets found: %w", err)
	}
	names, err := secrets.DecryptEnv(id)
	if err != nil {
		return fmt.Errorf("decrypt secrets: %w", err)
	}
	slog.Debug("secrets decrypted", "count", len(names))
	return nil
}
