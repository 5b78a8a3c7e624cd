package discord

import (
	"context"
	"log/slog"

	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/model"
)

// LogSender logs embeds instead of sending them. Used for dry runs.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, userID string, embed model.Embed) error {
	if l.logger == nil {
		return nil
	}
	l.logger.Info("DRY RUN EMBED",
		"user", userID,
		"title", embed.Title,
		"description_length", len([]rune(embed.Description)))
	logging.Verbose(l.logger, "dry run embed body", "user", userID, "description", embed.Description)
	return nil
}
