// Package tokenize turns a raw log line into the ordered token sequence the
// template miner consumes. Stateless: the same line always yields the same
// tokens.
package tokenize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// timestampPrefix matches the ISO-8601 timestamp most collectors prepend to
// forwarded lines. The timestamp is volatile per line and would force every
// line into its own cluster, so it is stripped before tokenizing.
var timestampPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z?\s+`)

// Tokens normalizes a raw log line and splits it into whitespace-delimited
// tokens. Returns nil when nothing remains after normalization.
func Tokens(line string) []string {
	line = timestampPrefix.ReplaceAllString(line, "")
	line = stripAccents(cleanText(line))
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// cleanText removes control characters and replaces all whitespace runs with
// plain spaces.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == 0xFFFD || unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents removes combining diacritical marks after NFD normalization,
// so "café" and "cafe" tokenize identically.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
