// Package mbox replays an mbox archive as a mailbox session. Every message
// starts unseen and flags live only in memory.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/mailcord/model"
)

var ErrUnknownMessage = errors.New("no such message in archive")

type Options struct {
	Path string
	Filter
}

// Session serves the messages of one archive. Message ids are 1-based
// positions in the archive, so filtered-out messages leave gaps.
type Session struct {
	ids      []uint32
	messages map[uint32][]byte
	seen     map[uint32]bool
	logger   *slog.Logger
}

// Open reads the archive at opts.Path.
func Open(opts Options, logger *slog.Logger) (*Session, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	s, err := Load(file, opts.Filter, logger)
	if err != nil {
		return nil, fmt.Errorf("read mbox %s: %w", path, err)
	}
	return s, nil
}

// Load reads every message from r that passes filter.
func Load(r io.Reader, filter Filter, logger *slog.Logger) (*Session, error) {
	matcher, err := filter.compile()
	if err != nil {
		return nil, err
	}

	s := &Session{
		messages: make(map[uint32][]byte),
		seen:     make(map[uint32]bool),
		logger:   logger,
	}

	reader := mboxlib.NewReader(r)
	skipped := 0
	for idx := 1; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("message %d read: %w", idx, err)
		}

		if !matcher.allows(raw) {
			skipped++
			continue
		}

		id := uint32(idx)
		s.ids = append(s.ids, id)
		s.messages[id] = raw
	}

	if logger != nil {
		logger.Info("mbox loaded", "messages", len(s.ids), "skipped", skipped)
	}
	return s, nil
}

func (s *Session) Len() int {
	return len(s.ids)
}

// Seen reports whether id has been marked seen during this replay.
func (s *Session) Seen(id uint32) bool {
	return s.seen[id]
}

func (s *Session) ListUnseen(_ context.Context) ([]uint32, error) {
	ids := make([]uint32, 0, len(s.ids))
	for _, id := range s.ids {
		if !s.seen[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Session) Fetch(_ context.Context, id uint32) (model.RawMessage, error) {
	raw, ok := s.messages[id]
	if !ok {
		return model.RawMessage{}, fmt.Errorf("fetch message %d: %w", id, ErrUnknownMessage)
	}
	return model.RawMessage{ID: id, Raw: raw}, nil
}

func (s *Session) MarkSeen(_ context.Context, id uint32) error {
	return s.setSeen(id, true)
}

func (s *Session) MarkUnseen(_ context.Context, id uint32) error {
	return s.setSeen(id, false)
}

func (s *Session) setSeen(id uint32, seen bool) error {
	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("flag message %d: %w", id, ErrUnknownMessage)
	}
	s.seen[id] = seen
	if s.logger != nil {
		s.logger.Debug("mbox flag updated", "id", id, "seen", seen)
	}
	return nil
}

// Close is a no-op; the archive is fully read by Load.
func (s *Session) Close() error {
	return nil
}
