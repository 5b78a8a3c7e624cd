package runner

import (
	"context"
	"fmt"

	"github.com/dhcgn/mailcord/compose"
	"github.com/dhcgn/mailcord/decoder"
	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/model"
	"github.com/dhcgn/mailcord/normalize"
	"github.com/dhcgn/mailcord/reconcile"
	"github.com/dhcgn/mailcord/stats"
)

// StageError reports the pipeline stage a message stopped at.
type StageError struct {
	Stage stats.Stage
	UID   uint32
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("message %d %s: %v", e.UID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Bridge turns one raw mail item into delivered embeds.
type Bridge struct {
	Normalizer normalize.Normalizer
	Composer   *compose.Composer
	Reconciler *reconcile.Reconciler
}

// Process decodes, normalizes, composes and delivers raw. Decode and
// normalize failures return a *StageError and leave the item untouched, so
// it stays unread. Delivery failures are reported in the result.
func (b *Bridge) Process(ctx context.Context, flags reconcile.Flagger, raw model.RawMessage) (model.DeliveryResult, error) {
	msg, err := decoder.Decode(raw.Raw)
	if err != nil {
		return model.DeliveryResult{}, &StageError{Stage: stats.StageDecode, UID: raw.ID, Err: err}
	}
	if msg.BodySource == model.BodyNone {
		return model.DeliveryResult{}, &StageError{Stage: stats.StageDecode, UID: raw.ID, Err: decoder.ErrNoBody}
	}
	logging.Verbose(b.Normalizer.Logger, "decoded message", "uid", raw.ID, "subject", msg.Subject, "from", msg.From, "to", msg.To, "source", msg.BodySource.String())

	body, err := b.Normalizer.Normalize(msg.RawBody, msg.BodySource)
	if err != nil {
		return model.DeliveryResult{}, &StageError{Stage: stats.StageNormalize, UID: raw.ID, Err: err}
	}

	embeds := b.Composer.Compose(msg, body)

	result, err := b.Reconciler.Deliver(ctx, flags, raw.ID, msg, embeds)
	if err != nil {
		return result, &StageError{Stage: stats.StageMailbox, UID: raw.ID, Err: err}
	}
	return result, nil
}
