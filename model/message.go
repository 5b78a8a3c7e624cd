package model

import "time"

// RawMessage is one fetched mail item: its mailbox identifier and the
// unparsed RFC 5322 bytes.
type RawMessage struct {
	ID  uint32
	Raw []byte
}

// BodySource records which MIME part the body was taken from.
type BodySource int

const (
	BodyNone BodySource = iota
	BodyPlain
	BodyHTML
)

func (b BodySource) String() string {
	switch b {
	case BodyPlain:
		return "plain"
	case BodyHTML:
		return "html"
	default:
		return "none"
	}
}

// Message is a decoded mail item ready for normalization.
type Message struct {
	Subject    string
	From       string
	To         string
	ReceivedAt time.Time
	BodySource BodySource
	RawBody    string
}
