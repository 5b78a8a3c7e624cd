package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailcord/cmd"
	"github.com/dhcgn/mailcord/config"
	"github.com/dhcgn/mailcord/discord"
	"github.com/dhcgn/mailcord/imap"
	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/runner"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mailcord",
		Short:        "Forward unread IMAP mail to Discord direct messages",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, config.ModePoll)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting mailcord", "server", cfg.IMAPHost, "mailbox", cfg.Mailbox, "routes", len(cfg.UserMap), "interval", cfg.PollInterval)

			return run(cmd.Context(), cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(cmd.NewReplayCommand(setupLogger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	imapOpts := imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		StartTLS:           cfg.StartTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Mailbox:            cfg.Mailbox,
	}
	open := func(ctx context.Context) (runner.Mailbox, error) {
		session, err := imap.Dial(ctx, imapOpts, logger)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	sender := discord.NewClient(cfg.DiscordToken, cfg.DiscordAPIURL, logger)
	bridge := cmd.NewBridge(cfg, sender, logger)

	r, err := runner.New(open, bridge, runner.Options{PollInterval: cfg.PollInterval, Once: cfg.Once}, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	return r.Run(ctx)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	parsed, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	level.Set(parsed)

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: logging.ReplaceLevel}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mailcord-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
