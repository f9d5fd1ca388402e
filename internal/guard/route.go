// Package guard turns untrusted model or tool text into members of closed
// vocabularies. Every function here is pure; callers record the reason.
package guard

import (
	"strings"

	"github.com/mofangju/security-agent/internal/policy"
)

// Route classification reasons.
const (
	ReasonExactMatch        = "exact_match"
	ReasonEmpty             = "empty"
	ReasonUnrecognizedToken = "unrecognized_token"
)

// RouteDecision is the trusted route plus why it was chosen.
type RouteDecision struct {
	Route    string
	Reason   string
	Fallback bool
}

// Vocabulary classifies supervisor output against the allowed routes.
type Vocabulary struct {
	routes   map[string]struct{}
	fallback string
}

// NewVocabulary builds a classifier from a loaded vocabulary policy.
func NewVocabulary(v *policy.Vocabulary) *Vocabulary {
	if v == nil {
		v = policy.DefaultVocabulary()
	}
	routes := make(map[string]struct{}, len(v.Routes))
	for _, r := range v.Routes {
		routes[r] = struct{}{}
	}
	fallback := v.FallbackRoute
	if fallback == "" {
		fallback = "direct"
	}
	routes[fallback] = struct{}{}
	return &Vocabulary{routes: routes, fallback: fallback}
}

// Fallback returns the route used for anything that is not an exact match.
func (v *Vocabulary) Fallback() string { return v.fallback }

// ClassifyRoute trims and case-folds raw and accepts it only when the whole
// remaining string is one allowed route.
func (v *Vocabulary) ClassifyRoute(raw string) RouteDecision {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return RouteDecision{Route: v.fallback, Reason: ReasonEmpty, Fallback: true}
	}
	if _, ok := v.routes[token]; ok {
		return RouteDecision{Route: token, Reason: ReasonExactMatch}
	}
	return RouteDecision{Route: v.fallback, Reason: ReasonUnrecognizedToken, Fallback: true}
}
