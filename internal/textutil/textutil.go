package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// SplitLines splits s on universal newlines: \n, \r\n, \r and the other
// Unicode line boundaries (\v, \f, \x1c-\x1e, U+0085, U+2028, U+2029).
// Line terminators are not included and a trailing terminator does not
// produce an empty final line.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}

	var lines []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '\r':
			lines = append(lines, s[start:i])
			if i+1 < len(s) && s[i+1] == '\n' {
				size = 2
			}
			start = i + size
		case isLineBoundary(r):
			lines = append(lines, s[start:i])
			start = i + size
		}
		i += size
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isLineBoundary(r rune) bool {
	switch r {
	case '\n', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// Hash computes a SHA-256 hex hash of a string for change detection.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "..."
}
