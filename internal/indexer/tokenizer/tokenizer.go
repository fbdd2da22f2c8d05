// Package tokenizer turns one input line into the single key it is indexed
// under. A line is never split: the whole line is the token, optionally
// trimmed or case-folded.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
)

// Mode selects how a line becomes a key.
type Mode string

const (
	// Exact keeps the line byte-for-byte.
	Exact Mode = "exact"
	// Trim strips leading and trailing white space, including a CR left
	// behind by CRLF line endings.
	Trim Mode = "trim"
	// Fold trims and lower-cases.
	Fold Mode = "fold"
)

// ParseMode validates s as a Mode. The empty string selects Exact.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Exact:
		return Exact, nil
	case Trim, Fold:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown key mode %q", s)
	}
}

// Key returns the index key for line under mode.
func Key(line string, mode Mode) string {
	switch mode {
	case Trim:
		return strings.TrimFunc(line, unicode.IsSpace)
	case Fold:
		return strings.ToLower(strings.TrimFunc(line, unicode.IsSpace))
	default:
		return line
	}
}
