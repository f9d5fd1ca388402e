// Package unicode finds and removes characters that render invisibly or
// reorder text: they let an operator comment or a retrieved document carry
// content that a reviewer cannot see.
package unicode

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Finding is one hidden character located in the input.
type Finding struct {
	Category  string // "zero-width", "bidi-override", "tag-char", "control-char", "invalid-utf8"
	Codepoint string // e.g. "U+200B"
	Offset    int    // byte offset in the input
}

// Report is the result of Inspect.
type Report struct {
	Clean     bool
	Findings  []Finding
	Sanitized string
}

// Mode selects which layout characters survive sanitizing.
type Mode int

const (
	// SingleLine drops every control character, including tab and newline.
	SingleLine Mode = iota
	// MultiLine keeps tab, newline and carriage return.
	MultiLine
)

// Inspect scans s and returns the hidden characters it contains along with
// a sanitized copy.
func Inspect(s string, mode Mode) Report {
	rep := Report{Clean: true}
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			rep.Clean = false
			rep.Findings = append(rep.Findings, Finding{
				Category:  "invalid-utf8",
				Codepoint: fmt.Sprintf("0x%02X", s[i]),
				Offset:    i,
			})
			i++
			continue
		}
		if cat := classify(r, mode); cat != "" {
			rep.Clean = false
			rep.Findings = append(rep.Findings, Finding{
				Category:  cat,
				Codepoint: fmt.Sprintf("U+%04X", r),
				Offset:    i,
			})
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}

	rep.Sanitized = b.String()
	return rep
}

// Strip is Inspect without the findings.
func Strip(s string, mode Mode) string {
	return Inspect(s, mode).Sanitized
}

func classify(r rune, mode Mode) string {
	switch {
	case isZeroWidth(r):
		return "zero-width"
	case isBidiControl(r):
		return "bidi-override"
	case r >= 0xE0001 && r <= 0xE007F:
		return "tag-char"
	case isControl(r, mode):
		return "control-char"
	}
	return ""
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u200E', '\u200F',
		'\uFEFF', '\u2060', '\u180E':
		return true
	}
	return false
}

func isBidiControl(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

func isControl(r rune, mode Mode) bool {
	if mode == MultiLine && (r == '\t' || r == '\n' || r == '\r') {
		return false
	}
	return r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}
