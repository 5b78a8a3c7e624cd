// Package normalize converts a selected mail body into markdown with
// descriptive links for every bare URL.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"

	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/model"
)

var ErrBadURL = errors.New("url has no usable host")

// emptyAnchorText stands in for the visible text of anchors that have none,
// so the markdown converter keeps them as links.
const emptyAnchorText = "mailcordemptyanchor"

var (
	markdownLink = regexp.MustCompile(`\[[^\]]*\]\([^)]+\)`)
	bareURL      = regexp.MustCompile(`https?://[^\s)<>"]+`)
	parenURL     = regexp.MustCompile(`\((https?://\S+)\s\)`)
	emptyLink    = regexp.MustCompile(`\[(?:` + emptyAnchorText + `)?\]\(<?(https?://[^)\s>]+)>?(?:\s+"[^"]*")?\)`)
)

// trailingPunct is cut from the end of a bare URL; it belongs to the
// surrounding sentence.
const trailingPunct = ".,;:!?]"

// mdConverter does not escape markdown characters, so URLs in text nodes
// reach LinkBareURLs byte for byte.
var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
	converter.WithEscapeMode(converter.EscapeModeDisabled),
)

// Normalizer holds the logger used for verbose body dumps. The zero value
// is ready to use.
type Normalizer struct {
	Logger *slog.Logger
}

// Normalize renders rawBody as trimmed markdown. Existing markdown links
// are left untouched; every other http(s) URL becomes a descriptive link.
func (n Normalizer) Normalize(rawBody string, source model.BodySource) (string, error) {
	var (
		text string
		err  error
	)

	switch source {
	case model.BodyPlain:
		text, err = plainToMarkdown(rawBody)
	case model.BodyHTML:
		text, err = htmlToMarkdown(rawBody)
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	logging.Verbose(n.Logger, "converted body", "source", source.String(), "body", text)

	text, err = LinkBareURLs(text)
	if err != nil {
		return "", err
	}
	logging.Verbose(n.Logger, "linked bare urls", "body", text)

	return strings.TrimSpace(text), nil
}

// LinkBareURLs rewrites every http(s) URL outside an existing markdown link.
func LinkBareURLs(text string) (string, error) {
	return outsideLinks(text, func(gap string) (string, error) {
		return replaceURLs(bareURL, gap, 0, trailingPunct)
	})
}

// plainToMarkdown only rewrites the "(<url> )" convention used by
// plain-text exports; other URLs are left for LinkBareURLs.
func plainToMarkdown(text string) (string, error) {
	return outsideLinks(text, func(gap string) (string, error) {
		return replaceURLs(parenURL, gap, 1, "")
	})
}

func htmlToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("img, table").Remove()
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return
		}
		if strings.TrimSpace(a.Text()) == "" {
			a.RemoveAttr("title")
			a.SetText(emptyAnchorText)
		}
	})

	pruned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	markdown, err := mdConverter.ConvertString(pruned)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}

	return replaceURLs(emptyLink, markdown, 1, "")
}

// outsideLinks applies fn to the text between markdown link spans and
// splices the spans back in by position, unchanged.
func outsideLinks(text string, fn func(string) (string, error)) (string, error) {
	var (
		b    strings.Builder
		last int
	)
	for _, span := range markdownLink.FindAllStringIndex(text, -1) {
		gap, err := fn(text[last:span[0]])
		if err != nil {
			return "", err
		}
		b.WriteString(gap)
		b.WriteString(text[span[0]:span[1]])
		last = span[1]
	}
	gap, err := fn(text[last:])
	if err != nil {
		return "", err
	}
	b.WriteString(gap)
	return b.String(), nil
}

// replaceURLs replaces every match of re with the descriptive form of the
// URL held in the given submatch group (0 for the whole match). For group 0,
// characters in cutset are trimmed from the URL end and kept as text.
func replaceURLs(re *regexp.Regexp, text string, group int, cutset string) (string, error) {
	var (
		b    strings.Builder
		last int
	)
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		rawURL := text[m[2*group]:m[2*group+1]]
		if group == 0 && cutset != "" {
			rawURL = strings.TrimRight(rawURL, cutset)
			end = start + len(rawURL)
		}
		link, err := Describe(rawURL)
		if err != nil {
			return "", err
		}
		b.WriteString(text[last:start])
		b.WriteString(link)
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// Describe returns the descriptive link "( [Link to: domain](rawURL) )".
func Describe(rawURL string) (string, error) {
	domain, err := Domain(rawURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("( [Link to: %s](%s) )", domain, rawURL), nil
}

// Domain returns the host of rawURL with one leading "www." removed.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrBadURL, rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrBadURL, rawURL)
	}
	return strings.TrimPrefix(u.Host, "www."), nil
}
