// Package compose splits a normalized body into Discord embeds.
package compose

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/model"
)

const (
	// DescriptionLimit leaves headroom below Discord's 4096 character cap.
	DescriptionLimit = 4090
	// TitleLimit is Discord's embed title cap.
	TitleLimit = 256

	timeLayout = "2006-01-02 15:04:05"
)

type Composer struct {
	MaintainerID string
	Logger       *slog.Logger
}

func New(maintainerID string, logger *slog.Logger) *Composer {
	return &Composer{MaintainerID: maintainerID, Logger: logger}
}

// Compose returns one embed when body fits DescriptionLimit and an ordered
// "Part i/N" sequence otherwise.
func (c *Composer) Compose(msg model.Message, body string) []model.Embed {
	chunks := split(body, DescriptionLimit)
	footer := model.Footer{Text: "Email received at " + FormatReceived(msg.ReceivedAt)}

	if c.Logger != nil {
		c.Logger.Debug("composing embeds", "to", msg.To, "subject", msg.Subject, "parts", len(chunks))
	}

	embeds := make([]model.Embed, 0, len(chunks))
	for i, chunk := range chunks {
		title := msg.Subject
		fields := []model.Field{
			{Name: "From", Value: msg.From, Inline: true},
			{Name: "To", Value: msg.To, Inline: true},
		}
		if len(chunks) > 1 {
			part := fmt.Sprintf("%d/%d", i+1, len(chunks))
			title = fmt.Sprintf("(Part %s) | %s", part, msg.Subject)
			fields = append(fields, model.Field{Name: "Part", Value: part, Inline: true})
		}
		fields = append(fields, model.Field{Name: "Note", Value: c.note(), Inline: false})

		embed := model.Embed{
			Title:       truncate(title, TitleLimit),
			Color:       model.EmbedColor,
			Fields:      fields,
			Description: chunk.text,
			Footer:      footer,
		}
		logging.Verbose(c.Logger, "composed embed", "part", i+1, "of", len(chunks), "embed", embed)
		embeds = append(embeds, embed)
	}

	return embeds
}

func (c *Composer) note() string {
	return fmt.Sprintf("Contact <@%s> if this message is unreadable.", c.MaintainerID)
}

// FormatReceived renders t in its own offset as "2006-01-02 15:04:05 UTC+hh:mm",
// or with a bare "UTC" for a zero offset.
func FormatReceived(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return t.Format(timeLayout) + " UTC"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s UTC%c%02d:%02d", t.Format(timeLayout), sign, offset/3600, offset%3600/60)
}

type chunk struct {
	text string
	// brk is the break character consumed after text; empty for the last
	// chunk and for hard splits.
	brk string
}

// split cuts body into chunks of at most limit runes. It breaks at the last
// newline, else the last space, within the first limit+1 runes and consumes
// that character; without either it cuts at limit.
func split(body string, limit int) []chunk {
	rest := []rune(body)
	var chunks []chunk
	for len(rest) > limit {
		window := rest[:limit+1]
		at := lastIndex(window, '\n')
		if at <= 0 {
			at = lastIndex(window, ' ')
		}
		if at <= 0 {
			chunks = append(chunks, chunk{text: string(rest[:limit])})
			rest = rest[limit:]
			continue
		}
		chunks = append(chunks, chunk{text: string(rest[:at]), brk: string(rest[at])})
		rest = rest[at+1:]
	}
	return append(chunks, chunk{text: string(rest)})
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
