// internal/util/util.go
package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes < 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// TailRunes keeps the last maxRunes runes of text, prefixing an ellipsis
// if anything was dropped.
func TailRunes(text string, maxRunes int) string {
	if maxRunes < 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return "…" + string(runes[len(runes)-maxRunes:])
}

// OneLine collapses runs of whitespace, including newlines, into single spaces.
func OneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
