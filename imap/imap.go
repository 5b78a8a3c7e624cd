package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"
	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mailcord/model"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	StartTLS           bool
	InsecureSkipVerify bool
	Mailbox            string
	// DialAttempts bounds connect and login retries; zero means 3.
	DialAttempts uint
}

func (o Options) mailbox() string {
	if o.Mailbox == "" {
		return "INBOX"
	}
	return o.Mailbox
}

// Session is a logged-in connection with the mailbox selected.
type Session struct {
	opts    Options
	client  *imapclient.Client
	logger  *slog.Logger
	cleanup func()
}

// Dial connects, logs in and selects the mailbox. Connection setup is
// retried with backoff; the caller must Close the session.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	attempts := opts.DialAttempts
	if attempts == 0 {
		attempts = 3
	}

	s := &Session{opts: opts, logger: logger}
	err := retry.Do(
		func() error {
			client, err := s.dial()
			if err != nil {
				return err
			}
			s.client = client
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(2*time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if logger != nil {
				logger.Warn("imap connect failed, retrying", "attempt", n+1, "err", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = s.client.Close()
	})
	s.cleanup = func() {
		stopClose()
		if ctx.Err() == nil {
			if err := s.client.Logout().Wait(); err != nil && s.logger != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := s.client.Close(); err != nil && s.logger != nil {
			s.logger.Debug("imap connection closed", "err", err)
		}
	}
	return s, nil
}

func (s *Session) dial() (*imapclient.Client, error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	if s.opts.UseTLS || s.opts.StartTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	switch {
	case s.opts.UseTLS:
		client, err = imapclient.DialTLS(address, options)
	case s.opts.StartTLS:
		client, err = imapclient.DialStartTLS(address, options)
	default:
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	data, err := client.Select(s.opts.mailbox(), nil).Wait()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select mailbox %s: %w", s.opts.mailbox(), err)
	}

	if s.logger != nil {
		s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username, "mailbox", s.opts.mailbox(), "messages", data.NumMessages, "tls", s.opts.UseTLS)
	}
	return client, nil
}

// ListUnseen returns the UIDs of all messages without \Seen, ascending.
func (s *Session) ListUnseen(_ context.Context) ([]uint32, error) {
	criteria := &imapv2.SearchCriteria{
		NotFlag: []imapv2.Flag{imapv2.FlagSeen},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	uids := data.AllUIDs()
	ids := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, uint32(uid))
	}
	return ids, nil
}

// Fetch downloads the full message with BODY.PEEK[] so \Seen is not set.
func (s *Session) Fetch(_ context.Context, id uint32) (model.RawMessage, error) {
	section := &imapv2.FetchItemBodySection{Peek: true}
	cmd := s.client.Fetch(imapv2.UIDSetNum(imapv2.UID(id)), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			return model.RawMessage{}, fmt.Errorf("fetch message %d: %w", id, err)
		}
		return model.RawMessage{}, fmt.Errorf("fetch message %d: not found", id)
	}

	buf, err := msg.Collect()
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("fetch message %d: %w", id, err)
	}
	if err := cmd.Close(); err != nil {
		return model.RawMessage{}, fmt.Errorf("fetch message %d: %w", id, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return model.RawMessage{}, fmt.Errorf("fetch message %d: empty body section", id)
	}
	return model.RawMessage{ID: id, Raw: raw}, nil
}

func (s *Session) MarkSeen(_ context.Context, id uint32) error {
	return s.storeSeen(id, imapv2.StoreFlagsAdd)
}

func (s *Session) MarkUnseen(_ context.Context, id uint32) error {
	return s.storeSeen(id, imapv2.StoreFlagsDel)
}

func (s *Session) storeSeen(id uint32, op imapv2.StoreFlagsOp) error {
	cmd := s.client.Store(imapv2.UIDSetNum(imapv2.UID(id)), &imapv2.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []imapv2.Flag{imapv2.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("store \\Seen on message %d: %w", id, err)
	}
	return nil
}

// Close logs out and closes the connection. Failures are only logged.
func (s *Session) Close() error {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
	return nil
}
