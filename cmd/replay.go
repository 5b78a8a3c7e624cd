package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailcord/config"
	"github.com/dhcgn/mailcord/discord"
	"github.com/dhcgn/mailcord/mbox"
	"github.com/dhcgn/mailcord/reconcile"
	"github.com/dhcgn/mailcord/runner"
)

// LoggerFunc builds the process logger from cfg and returns its cleanup.
type LoggerFunc func(cfg config.Config) (*slog.Logger, func() error, error)

// NewReplayCommand runs one cycle over an mbox archive instead of IMAP.
// Embeds are only logged unless --send is given.
func NewReplayCommand(setupLogger LoggerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run the bridge once over an mbox archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			send, err := cmd.Flags().GetBool("send")
			if err != nil {
				return err
			}
			mode := config.ModeReplay
			if send {
				mode = config.ModeReplaySend
			}

			cfg, err := config.LoadConfig(cmd, mode)
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

			opts, err := replayOptions(cmd)
			if err != nil {
				return err
			}
			logger.Info("starting replay", "mbox", opts.Path, "send", send, "routes", len(cfg.UserMap))

			var sender reconcile.Sender = discord.NewLogSender(logger)
			if send {
				sender = discord.NewClient(cfg.DiscordToken, cfg.DiscordAPIURL, logger)
			}

			session, err := Replay(cmd.Context(), cfg, opts, sender, logger)
			if err != nil {
				return err
			}
			logger.Info("replay finished", "messages", session.Len())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("mbox", "", "Path to the .mbox archive to replay")
	flags.Bool("send", false, "Deliver embeds to Discord instead of logging them")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	_ = cmd.MarkFlagRequired("mbox")

	return cmd
}

func replayOptions(cmd *cobra.Command) (mbox.Options, error) {
	flags := cmd.Flags()
	var (
		opts mbox.Options
		err  error
	)
	if opts.Path, err = flags.GetString("mbox"); err != nil {
		return opts, err
	}
	if opts.IncludeHeader, err = flags.GetStringArray("include-header"); err != nil {
		return opts, err
	}
	if opts.IncludeBody, err = flags.GetStringArray("include-body"); err != nil {
		return opts, err
	}
	if opts.ExcludeHeader, err = flags.GetStringArray("exclude-header"); err != nil {
		return opts, err
	}
	if opts.ExcludeBody, err = flags.GetStringArray("exclude-body"); err != nil {
		return opts, err
	}
	return opts, nil
}

// Replay loads the archive and runs a single cycle over it through sender.
// The returned session carries the resulting seen flags.
func Replay(ctx context.Context, cfg config.Config, opts mbox.Options, sender reconcile.Sender, logger *slog.Logger) (*mbox.Session, error) {
	session, err := mbox.Open(opts, logger)
	if err != nil {
		return nil, err
	}

	open := func(context.Context) (runner.Mailbox, error) { return session, nil }
	r, err := runner.New(open, NewBridge(cfg, sender, logger), runner.Options{Once: true}, logger)
	if err != nil {
		return nil, fmt.Errorf("runner.New: %w", err)
	}
	if err := r.Run(ctx); err != nil {
		return session, err
	}
	return session, nil
}
