package mbox

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Filter selects which archived messages are replayed. Include and exclude
// patterns are mutually exclusive; header patterns match the raw header
// block and body patterns the raw body.
type Filter struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

type matcher struct {
	includeHeader []*regexp.Regexp
	includeBody   []*regexp.Regexp
	excludeHeader []*regexp.Regexp
	excludeBody   []*regexp.Regexp
}

func (f Filter) compile() (*matcher, error) {
	var (
		m   matcher
		err error
	)
	if m.includeHeader, err = compilePatterns(f.IncludeHeader); err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	if m.includeBody, err = compilePatterns(f.IncludeBody); err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	if m.excludeHeader, err = compilePatterns(f.ExcludeHeader); err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	if m.excludeBody, err = compilePatterns(f.ExcludeBody); err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}
	if m.including() && m.excluding() {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}
	return &m, nil
}

func (m *matcher) including() bool {
	return len(m.includeHeader) > 0 || len(m.includeBody) > 0
}

func (m *matcher) excluding() bool {
	return len(m.excludeHeader) > 0 || len(m.excludeBody) > 0
}

func (m *matcher) allows(raw []byte) bool {
	if !m.including() && !m.excluding() {
		return true
	}
	header, body := splitRawMessage(raw)
	if m.including() {
		return matchAny(m.includeHeader, header) || matchAny(m.includeBody, body)
	}
	return !matchAny(m.excludeHeader, header) && !matchAny(m.excludeBody, body)
}

func splitRawMessage(raw []byte) (header, body []byte) {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	return raw, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text []byte) bool {
	for _, re := range patterns {
		if re.Match(text) {
			return true
		}
	}
	return false
}
