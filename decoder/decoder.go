// Package decoder turns raw RFC 5322 bytes into a model.Message.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/mailcord/model"
)

var (
	ErrSubject     = errors.New("undecodable subject")
	ErrMissingDate = errors.New("message missing Date header")
	ErrInvalidDate = errors.New("message has invalid Date header")
	ErrNoBody      = errors.New("message has no text/plain or text/html part")
)

// errStopWalk ends the part walk once a text/plain part has been read.
var errStopWalk = errors.New("stop walk")

// Decode parses raw and selects exactly one body part: the first text/plain
// part in walk order, else the first text/html part. A message without
// either yields BodyNone and an empty body.
func Decode(raw []byte) (model.Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return model.Message{}, fmt.Errorf("parse message: %w", err)
	}

	header := mail.Header{Header: entity.Header}

	subject, err := header.Subject()
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrSubject, err)
	}

	if strings.TrimSpace(header.Get("Date")) == "" {
		return model.Message{}, ErrMissingDate
	}
	receivedAt, err := header.Date()
	if err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}

	source, body, err := selectBody(entity)
	if err != nil {
		return model.Message{}, err
	}

	return model.Message{
		Subject:    subject,
		From:       firstAddress(header, "From"),
		To:         firstAddress(header, "To"),
		ReceivedAt: receivedAt,
		BodySource: source,
		RawBody:    body,
	}, nil
}

func firstAddress(h mail.Header, key string) string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return ""
	}
	return list[0].Address
}

func selectBody(entity *message.Entity) (model.BodySource, string, error) {
	var (
		source = model.BodyNone
		body   string
	)

	err := entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			return err
		}

		switch partType(part) {
		case "text/plain":
			text, err := io.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("read text/plain part: %w", err)
			}
			source, body = model.BodyPlain, string(text)
			return errStopWalk
		case "text/html":
			if source != model.BodyNone {
				return nil
			}
			text, err := io.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("read text/html part: %w", err)
			}
			source, body = model.BodyHTML, string(text)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return model.BodyNone, "", fmt.Errorf("walk parts: %w", err)
	}

	return source, body, nil
}

// partType returns the lower-cased media type, defaulting to text/plain
// when the part carries no Content-Type header.
func partType(part *message.Entity) string {
	if strings.TrimSpace(part.Header.Get("Content-Type")) == "" {
		return "text/plain"
	}
	mediaType, _, err := part.Header.ContentType()
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}
