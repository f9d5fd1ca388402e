package intent

import (
	"regexp"
	"strings"
)

var (
	confirmWordRe = regexp.MustCompile(`\b(yes|y|confirm|confirmed|proceed|apply|go ahead|do it)\b`)
	nonceRe       = regexp.MustCompile(`\bconfirm(?:ed)?\s*[:#]?\s*(\d{4,16})\b`)
	bareNonceRe   = regexp.MustCompile(`^\s*(\d{4,16})\s*$`)
	cancelRe      = regexp.MustCompile(`\b(cancel|abort|never ?mind|forget it|don't do it|do not do it)\b`)
)

// IsConfirmation reports whether text reads as an approval of a pending
// action, with or without the nonce.
func IsConfirmation(text string) bool {
	norm := Normalize(text)
	if IsCancel(norm) {
		return false
	}
	return confirmWordRe.MatchString(norm) || bareNonceRe.MatchString(norm)
}

// ExtractNonce returns the digits following "confirm", or a reply that is
// only digits. Length is not checked here; the ledger compares exactly.
func ExtractNonce(text string) (string, bool) {
	norm := Normalize(text)
	if m := nonceRe.FindStringSubmatch(norm); m != nil {
		return m[1], true
	}
	if m := bareNonceRe.FindStringSubmatch(norm); m != nil {
		return m[1], true
	}
	return "", false
}

// HasExplicitNonce reports whether text carries a nonce-shaped token.
func HasExplicitNonce(text string) bool {
	_, ok := ExtractNonce(text)
	return ok
}

// IsCancel reports whether text asks to drop a pending action.
func IsCancel(text string) bool {
	return cancelRe.MatchString(strings.ToLower(text))
}
