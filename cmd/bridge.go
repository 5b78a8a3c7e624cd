package cmd

import (
	"log/slog"

	"github.com/dhcgn/mailcord/compose"
	"github.com/dhcgn/mailcord/config"
	"github.com/dhcgn/mailcord/normalize"
	"github.com/dhcgn/mailcord/reconcile"
	"github.com/dhcgn/mailcord/runner"
)

// NewBridge wires the per-message pipeline for cfg around sender.
func NewBridge(cfg config.Config, sender reconcile.Sender, logger *slog.Logger) *runner.Bridge {
	return &runner.Bridge{
		Normalizer: normalize.Normalizer{Logger: logger},
		Composer:   compose.New(cfg.MaintainerID, logger),
		Reconciler: reconcile.New(cfg.Routes(), sender, logger),
	}
}
