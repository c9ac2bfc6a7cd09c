package textutil

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// Clean lowercases text, strips every character outside [a-zA-Z0-9\s] and
// trims surrounding whitespace. Idempotent; empty input stays empty.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToLower(text)
	text = nonAlphanumeric.ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}
