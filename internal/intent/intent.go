// Package intent turns an operator utterance into a typed WAF change
// request. Parsing is deliberately keyword based: the result is only a
// proposal that still has to pass validation and explicit confirmation.
package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind enumerates the side-effecting operations the assistant can perform.
type Kind string

const (
	KindNone              Kind = "none"
	KindSetProtectionMode Kind = "set-protection-mode"
	KindAddBlacklistEntry Kind = "add-blacklist-entry"
	KindAddWhitelistEntry Kind = "add-whitelist-entry"
)

// Intent is an immutable, typed change request.
type Intent struct {
	Kind    Kind   `json:"kind"`
	Mode    string `json:"mode,omitempty"`
	IP      string `json:"ip,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// None is the zero intent.
var None = Intent{Kind: KindNone}

// IsNone reports whether no change was requested.
func (i Intent) IsNone() bool { return i.Kind == "" || i.Kind == KindNone }

// SideEffecting reports whether executing i changes WAF state.
func (i Intent) SideEffecting() bool {
	switch i.Kind {
	case KindSetProtectionMode, KindAddBlacklistEntry, KindAddWhitelistEntry:
		return true
	}
	return false
}

// Preview is the human readable description shown before confirmation.
func (i Intent) Preview() string {
	switch i.Kind {
	case KindSetProtectionMode:
		return fmt.Sprintf("set SafeLine protection mode to %s", i.Mode)
	case KindAddBlacklistEntry:
		return fmt.Sprintf("add IP %s to SafeLine blacklist", i.IP)
	case KindAddWhitelistEntry:
		return fmt.Sprintf("add IP %s to SafeLine whitelist", i.IP)
	}
	return "no action"
}

var (
	hexColonRe = regexp.MustCompile(`^(?:[0-9a-f]{0,4}:){2,}`)
	commentRe  = regexp.MustCompile(`(?i)\b(?:comment|reason|note)\s*[:=]?\s*["']([^"']*)["']`)
)

var (
	blacklistWords = []string{"blacklist", "block", "ban", "deny", "blocklist"}
	whitelistWords = []string{"whitelist", "allowlist", "allow", "trust", "permit"}
	modeContext    = []string{"mode", "protection", "waf"}
	blockPhrases   = []string{"block mode", "blocking mode", "set block", "enable block", "mode to block", "mode block"}
	detectPhrases  = []string{"detect mode", "detection mode", "monitor mode", "default mode", "mode to detect", "mode to default"}
	offPhrases     = []string{"off mode", "disable mode", "turn off", "disable waf", "mode to off", "mode off", "disable protection"}
)

// Normalize lower-cases text and collapses runs of whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Infer extracts at most one intent from text. IP list changes take
// precedence over mode changes when both could match.
func Infer(text string) Intent {
	norm := Normalize(text)
	if norm == "" || isQuestion(norm) {
		return None
	}

	if ip := addressToken(norm); ip != "" {
		comment := extractComment(text)
		// whitelist first: "allow" never appears in a block request but
		// "unblock" contains "block"
		if containsAny(norm, whitelistWords) || strings.Contains(norm, "unblock") {
			return Intent{Kind: KindAddWhitelistEntry, IP: ip, Comment: comment}
		}
		if containsAny(norm, blacklistWords) {
			return Intent{Kind: KindAddBlacklistEntry, IP: ip, Comment: comment}
		}
	}

	if containsAny(norm, modeContext) {
		switch {
		case containsAny(norm, blockPhrases):
			return Intent{Kind: KindSetProtectionMode, Mode: "block"}
		case containsAny(norm, detectPhrases):
			return Intent{Kind: KindSetProtectionMode, Mode: "detect"}
		case containsAny(norm, offPhrases):
			return Intent{Kind: KindSetProtectionMode, Mode: "off"}
		}
	}

	return None
}

// isQuestion catches informational asks such as "what does block mode do?"
// that mention a mode without requesting a change.
func isQuestion(norm string) bool {
	first, _, _ := strings.Cut(norm, " ")
	switch first {
	case "what", "what's", "how", "why", "when", "which", "does", "is", "explain", "describe":
		return true
	}
	return false
}

// addressToken returns the first whitespace-delimited token that looks like
// an address literal. The token is returned whole, never a valid-looking
// prefix of it: "1.2.3.4.5" stays "1.2.3.4.5" so the validator rejects it.
func addressToken(norm string) string {
	fields := strings.FieldsFunc(norm, func(r rune) bool {
		return r == ' ' || r == '='
	})
	for _, f := range fields {
		tok := strings.Trim(f, `"'()[]<>,;!?`)
		tok = strings.TrimSuffix(tok, ".")
		if tok == "" {
			continue
		}
		digitFirst := tok[0] >= '0' && tok[0] <= '9'
		// one colon is a clock time; every IPv6 literal has at least two
		switch {
		case digitFirst && strings.Contains(tok, "."):
			return tok
		case strings.Count(tok, ":") >= 2 && (digitFirst || hexColonRe.MatchString(tok)):
			return tok
		}
	}
	return ""
}

func extractComment(text string) string {
	if m := commentRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
