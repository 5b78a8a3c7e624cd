package stats

import (
	"log/slog"
	"sync"
	"time"
)

type Stage string

const (
	StageMailbox   Stage = "mailbox"
	StageFetch     Stage = "fetch"
	StageDecode    Stage = "decode"
	StageNormalize Stage = "normalize"
	StageDeliver   Stage = "deliver"
)

type EventType string

const (
	EventTypeListed      EventType = "listed"
	EventTypeDelivered   EventType = "delivered"
	EventTypePartial     EventType = "partial"
	EventTypeUndelivered EventType = "undelivered"
	EventTypeError       EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID uint32
	Err       error
	Detail    string
}

type Summary struct {
	Listed          int
	Delivered       int
	Partial         int
	Undelivered     int
	FetchFailed     int
	DecodeFailed    int
	NormalizeFailed int
	Errors          int
	LastError       error
}

// Add merges o into s. LastError is taken from o when set.
func (s *Summary) Add(o Summary) {
	s.Listed += o.Listed
	s.Delivered += o.Delivered
	s.Partial += o.Partial
	s.Undelivered += o.Undelivered
	s.FetchFailed += o.FetchFailed
	s.DecodeFailed += o.DecodeFailed
	s.NormalizeFailed += o.NormalizeFailed
	s.Errors += o.Errors
	if o.LastError != nil {
		s.LastError = o.LastError
	}
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"listed", s.Listed,
		"delivered", s.Delivered,
		"partial", s.Partial,
		"undelivered", s.Undelivered,
		"fetchFailed", s.FetchFailed,
		"decodeFailed", s.DecodeFailed,
		"normalizeFailed", s.NormalizeFailed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Add(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeListed:
		c.summary.Listed++
	case EventTypeDelivered:
		c.summary.Delivered++
	case EventTypePartial:
		c.summary.Partial++
	case EventTypeUndelivered:
		c.summary.Undelivered++
	case EventTypeError:
		c.summary.Errors++
		switch evt.Stage {
		case StageFetch:
			c.summary.FetchFailed++
		case StageDecode:
			c.summary.DecodeFailed++
		case StageNormalize:
			c.summary.NormalizeFailed++
		}
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

// Reporter logs each cycle's summary and keeps running totals.
type Reporter struct {
	mu      sync.Mutex
	total   Summary
	cycles  int
	logger  *slog.Logger
	started time.Time
}

func NewReporter(logger *slog.Logger) *Reporter {
	return &Reporter{logger: logger, started: time.Now()}
}

func (r *Reporter) Report(cycleID string, cycle Summary, duration time.Duration) {
	r.mu.Lock()
	r.total.Add(cycle)
	r.cycles++
	cycles := r.cycles
	r.mu.Unlock()

	if r.logger == nil {
		return
	}
	attrs := append(cycle.LogAttrs(), "cycle", cycleID, "duration", duration, "cycles", cycles)
	if cycle.Errors > 0 || cycle.Partial > 0 || cycle.Undelivered > 0 {
		r.logger.Warn("cycle summary", attrs...)
		return
	}
	r.logger.Info("cycle summary", attrs...)
}

func (r *Reporter) Total() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// LogTotal logs the running totals since the reporter was created.
func (r *Reporter) LogTotal() {
	if r.logger == nil {
		return
	}
	total := r.Total()
	r.logger.Info("stats summary", append(total.LogAttrs(), "uptime", time.Since(r.started))...)
}
