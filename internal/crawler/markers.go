package crawler

import (
	"errors"
	"regexp"
	"strings"
)

// ErrUnrecognized reports that a payload carries no usable content markers.
// This is a permanent condition for the payload: refetching the same
// identifier yields the same text.
var ErrUnrecognized = errors.New("content markers not found")

// Boundary markers come in a strict line-anchored form and a looser inline
// form; real payloads are inconsistent about spacing and phrasing, so the
// loose pattern is tried whenever the strict one fails.
var (
	startStrict = regexp.MustCompile(`(?im)^\*\*\*\s*START OF (?:THIS|THE)?\s*PROJECT GUTENBERG EBOOK.*$`)
	endStrict   = regexp.MustCompile(`(?im)^\*\*\*\s*END OF (?:THIS|THE)?\s*PROJECT GUTENBERG EBOOK.*$`)
	startLoose  = regexp.MustCompile(`(?i)\*\*\*\s*START OF .*PROJECT GUTENBERG.*\*\*\*`)
	endLoose    = regexp.MustCompile(`(?i)\*\*\*\s*END OF .*PROJECT GUTENBERG.*\*\*\*`)
)

// SplitMarkers splits a raw payload into its header and body at the content
// boundary markers. The header is everything before the start marker, the
// body everything strictly between the markers; both are trimmed of leading
// and trailing whitespace and otherwise untouched. The end marker is searched
// only after the start marker. Returns ErrUnrecognized when either boundary
// is missing.
func SplitMarkers(raw string) (header, body string, err error) {
	start := startStrict.FindStringIndex(raw)
	if start == nil {
		start = startLoose.FindStringIndex(raw)
	}
	if start == nil {
		return "", "", ErrUnrecognized
	}

	tail := raw[start[1]:]
	end := endStrict.FindStringIndex(tail)
	if end == nil {
		end = endLoose.FindStringIndex(tail)
	}
	if end == nil {
		return "", "", ErrUnrecognized
	}

	header = strings.TrimSpace(raw[:start[0]])
	body = strings.TrimSpace(tail[:end[0]])
	return header, body, nil
}
