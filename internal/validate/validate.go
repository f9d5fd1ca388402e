// Package validate holds the whitelist checks applied to every value that
// reaches a side-effecting WAF call. Validators never return errors: an
// invalid value is reported through the boolean so the caller can compose
// its own rejection.
package validate

import (
	"net/netip"
	"strings"
	"unicode/utf8"

	"github.com/mofangju/security-agent/internal/policy"
	"github.com/mofangju/security-agent/internal/unicode"
)

const DefaultCommentMaxLen = 128

// Options tunes a Validator.
type Options struct {
	AllowIPv6     bool
	CommentMaxLen int
}

// Validator checks IPs, modes and comments against configured limits.
type Validator struct {
	modes      map[string]string
	allowIPv6  bool
	commentMax int
}

// New builds a Validator. A nil vocabulary uses the built-in mode set.
func New(vocab *policy.Vocabulary, opts Options) *Validator {
	if vocab == nil {
		vocab = policy.DefaultVocabulary()
	}
	max := opts.CommentMaxLen
	if max <= 0 {
		max = DefaultCommentMaxLen
	}
	return &Validator{
		modes:      vocab.ModeAliases(),
		allowIPv6:  opts.AllowIPv6,
		commentMax: max,
	}
}

// IPOrCIDR accepts a single address or a CIDR block and returns its
// canonical form. CIDR blocks are masked to their network address.
func (v *Validator) IPOrCIDR(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if s == "" || strings.ContainsAny(s, "% \t") {
		return "", false
	}

	if addrPart, bits, isPrefix := strings.Cut(s, "/"); isPrefix {
		if !digitsOnly(bits) || (len(bits) > 1 && bits[0] == '0') {
			return "", false
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil || !v.familyAllowed(prefix.Addr(), addrPart) {
			return "", false
		}
		return prefix.Masked().String(), true
	}

	addr, err := netip.ParseAddr(s)
	if err != nil || !v.familyAllowed(addr, s) {
		return "", false
	}
	return addr.String(), true
}

func (v *Validator) familyAllowed(addr netip.Addr, literal string) bool {
	if addr.Zone() != "" {
		return false
	}
	if addr.Is4() && !strings.Contains(literal, ":") {
		return true
	}
	return v.allowIPv6
}

// Mode maps text onto a canonical protection mode, accepting aliases.
func (v *Validator) Mode(text string) (string, bool) {
	canonical, ok := v.modes[strings.ToLower(strings.TrimSpace(text))]
	return canonical, ok
}

// Comment removes control and invisible characters, collapses whitespace
// and truncates to the configured rune length. The result may be empty.
func (v *Validator) Comment(text string) string {
	clean := unicode.Strip(text, unicode.MultiLine)
	clean = strings.Join(strings.Fields(clean), " ")
	if utf8.RuneCountInString(clean) > v.commentMax {
		runes := []rune(clean)
		clean = strings.TrimRight(string(runes[:v.commentMax]), " ")
	}
	return clean
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
