package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhcgn/mailcord/model"
	"github.com/dhcgn/mailcord/stats"
)

// Mailbox is one open mailbox session.
type Mailbox interface {
	ListUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, id uint32) (model.RawMessage, error)
	MarkSeen(ctx context.Context, id uint32) error
	MarkUnseen(ctx context.Context, id uint32) error
	Close() error
}

// Opener opens a fresh mailbox session for a cycle.
type Opener func(ctx context.Context) (Mailbox, error)

type Options struct {
	PollInterval time.Duration
	Once         bool
}

type Runner struct {
	open     Opener
	bridge   *Bridge
	opts     Options
	logger   *slog.Logger
	reporter *stats.Reporter
}

func New(open Opener, bridge *Bridge, opts Options, logger *slog.Logger) (*Runner, error) {
	if open == nil {
		return nil, fmt.Errorf("mailbox opener must not be nil")
	}
	if bridge == nil {
		return nil, fmt.Errorf("bridge must not be nil")
	}
	if !opts.Once && opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		open:     open,
		bridge:   bridge,
		opts:     opts,
		logger:   logger,
		reporter: stats.NewReporter(logger),
	}, nil
}

// Run polls until ctx is cancelled. A failed cycle is logged and the loop
// carries on after the poll interval. With Options.Once a single cycle runs
// and its error is returned.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("poll loop started", "interval", r.opts.PollInterval, "once", r.opts.Once)
	defer r.reporter.LogTotal()

	for {
		_, err := r.Cycle(ctx)
		if r.opts.Once {
			return err
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("poll cycle failed", "err", err)
		}

		timer := time.NewTimer(r.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Cycle opens one session, processes every unseen message in order and
// closes the session on every path. Per-message failures are counted in the
// summary; only session-level failures are returned.
func (r *Runner) Cycle(ctx context.Context) (summary stats.Summary, err error) {
	cycleID := uuid.NewString()
	logger := r.logger.With("cycle", cycleID)
	collector := stats.NewCollector()
	started := time.Now()

	defer func() {
		if err != nil {
			collector.Add(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeError, Err: err})
		}
		summary = collector.Snapshot()
		r.reporter.Report(cycleID, summary, time.Since(started))
	}()

	mailbox, err := r.open(ctx)
	if err != nil {
		return summary, fmt.Errorf("open mailbox: %w", err)
	}
	defer func() {
		if closeErr := mailbox.Close(); closeErr != nil {
			logger.Warn("mailbox close failed", "err", closeErr)
		}
	}()

	ids, err := mailbox.ListUnseen(ctx)
	if err != nil {
		return summary, fmt.Errorf("list unseen: %w", err)
	}
	logger.Debug("unseen messages", "count", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		collector.Add(stats.Event{Stage: stats.StageMailbox, Type: stats.EventTypeListed, MessageID: id})
		r.processOne(ctx, logger, mailbox, id, collector)
	}
	return summary, nil
}

func (r *Runner) processOne(ctx context.Context, logger *slog.Logger, mailbox Mailbox, id uint32, collector *stats.Collector) {
	emit := func(evt stats.Event) {
		evt.MessageID = id
		collector.Add(evt)
	}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("message %d: panic: %v", id, p)
			logger.Error("message processing panicked", "uid", id, "err", err)
			emit(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeError, Err: err})
		}
	}()

	raw, err := mailbox.Fetch(ctx, id)
	if err != nil {
		logger.Error("fetch failed", "uid", id, "err", err)
		emit(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypeError, Err: err})
		return
	}

	result, err := r.bridge.Process(ctx, mailbox, raw)
	if err != nil {
		stage := stats.StageDeliver
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		logger.Error("message skipped", "uid", id, "stage", stage, "err", err)
		emit(stats.Event{Stage: stage, Type: stats.EventTypeError, Err: err})
		if len(result.Outcomes) == 0 {
			return
		}
	}

	switch {
	case result.Delivered():
		emit(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeDelivered, Detail: result.Destination})
	case result.Failed() < len(result.Outcomes):
		emit(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypePartial, Detail: result.Destination})
	default:
		emit(stats.Event{Stage: stats.StageDeliver, Type: stats.EventTypeUndelivered, Detail: result.Destination})
	}
}

// Total returns the statistics of every cycle run so far.
func (r *Runner) Total() stats.Summary {
	return r.reporter.Total()
}
