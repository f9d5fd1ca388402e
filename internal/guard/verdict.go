package guard

import "strings"

// Verdict is the closed set of grounding-loop decisions.
type Verdict string

const (
	VerdictFinal    Verdict = "FINAL"
	VerdictRetry    Verdict = "RETRY"
	VerdictClarify  Verdict = "CLARIFY"
	VerdictEscalate Verdict = "ESCALATE"
)

// Verdict parse reasons when the critic output is not usable.
const (
	ReasonEmptyCritique  = "empty_critique"
	ReasonInvalidVerdict = "invalid_verdict_token"
)

var verdicts = map[string]Verdict{
	"FINAL":    VerdictFinal,
	"RETRY":    VerdictRetry,
	"CLARIFY":  VerdictClarify,
	"ESCALATE": VerdictEscalate,
}

// ParseDecision reads critic output of the form "TOKEN: reason". Anything
// whose token is not in the closed set yields RETRY and recognized=false.
func ParseDecision(raw string) (v Verdict, reason string, recognized bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return VerdictRetry, ReasonEmptyCritique, false
	}

	head, tail, hasReason := strings.Cut(text, ":")
	token := strings.ToUpper(strings.TrimSpace(head))
	v, ok := verdicts[token]
	if !ok {
		return VerdictRetry, ReasonInvalidVerdict, false
	}
	if hasReason {
		reason = strings.TrimSpace(tail)
	}
	return v, reason, true
}
