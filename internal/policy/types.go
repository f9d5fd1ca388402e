package policy

// Decision is the verdict a guardrail gate records for one transition.
type Decision string

const (
	// DecisionAllow means the input was accepted or the action ran.
	DecisionAllow Decision = "ALLOW"
	// DecisionAudit means the transition is parked for review, e.g. a
	// proposed action waiting on its confirmation nonce.
	DecisionAudit Decision = "AUDIT"
	// DecisionBlock means the input was rejected or replaced by a fallback.
	DecisionBlock Decision = "BLOCK"
)

// Vocabulary is the closed set of tokens the assistant will trust from a
// language model or an operator.
type Vocabulary struct {
	Version       string   `yaml:"version"`
	Routes        []string `yaml:"routes"`
	FallbackRoute string   `yaml:"fallback_route"`
	// Modes maps a canonical protection mode to the aliases accepted for it.
	// The canonical name is always accepted.
	Modes map[string][]string `yaml:"modes"`
}

// ModeAliases flattens Modes into alias -> canonical.
func (v *Vocabulary) ModeAliases() map[string]string {
	out := make(map[string]string)
	for canonical, aliases := range v.Modes {
		out[canonical] = canonical
		for _, a := range aliases {
			out[a] = canonical
		}
	}
	return out
}

// HasRoute reports whether route is a member of the vocabulary.
func (v *Vocabulary) HasRoute(route string) bool {
	for _, r := range v.Routes {
		if r == route {
			return true
		}
	}
	return false
}
