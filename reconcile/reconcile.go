// Package reconcile delivers composed embeds and folds the per-embed
// outcomes back into the mailbox as a read or unread flag.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/model"
	"github.com/dhcgn/mailcord/route"
)

// Sender posts one embed to a user.
type Sender interface {
	Send(ctx context.Context, userID string, embed model.Embed) error
}

// Flagger sets or clears the read flag of a mail item.
type Flagger interface {
	MarkSeen(ctx context.Context, id uint32) error
	MarkUnseen(ctx context.Context, id uint32) error
}

type Reconciler struct {
	routes *route.Table
	sender Sender
	logger *slog.Logger
}

func New(routes *route.Table, sender Sender, logger *slog.Logger) *Reconciler {
	return &Reconciler{routes: routes, sender: sender, logger: logger}
}

// Deliver sends every embed to the destination of msg.To in order. A failed
// send does not stop the remaining ones. The item is marked seen only when
// all embeds were delivered, otherwise it is explicitly marked unseen so the
// next cycle retries it. The returned error is only about the flag update.
func (r *Reconciler) Deliver(ctx context.Context, flags Flagger, id uint32, msg model.Message, embeds []model.Embed) (model.DeliveryResult, error) {
	destination, mapped := r.routes.Resolve(msg.To)
	if !mapped && r.logger != nil {
		r.logger.Info("recipient not mapped, using fallback", "to", msg.To, "user", destination)
	}

	result := model.DeliveryResult{
		Destination: destination,
		Outcomes:    make([]model.Outcome, 0, len(embeds)),
	}
	for i, embed := range embeds {
		part := i + 1
		logging.Verbose(r.logger, "sending embed", "uid", id, "part", part, "title", embed.Title, "description", embed.Description)
		err := r.sender.Send(ctx, destination, embed)
		if err != nil && r.logger != nil {
			r.logger.Error("failed to send embed", "uid", id, "part", part, "of", len(embeds), "user", destination, "err", err)
		}
		result.Outcomes = append(result.Outcomes, model.Outcome{Part: part, Err: err})
	}

	if result.Delivered() {
		if err := flags.MarkSeen(ctx, id); err != nil {
			return result, fmt.Errorf("mark message %d seen: %w", id, err)
		}
		if r.logger != nil {
			r.logger.Info("message delivered", "uid", id, "user", destination, "parts", len(embeds))
		}
		return result, nil
	}

	if err := flags.MarkUnseen(ctx, id); err != nil {
		return result, fmt.Errorf("mark message %d unseen: %w", id, err)
	}
	if r.logger != nil {
		r.logger.Warn("message left unread for retry", "uid", id, "user", destination, "failed_parts", result.Failed(), "parts", len(embeds))
	}
	return result, nil
}
