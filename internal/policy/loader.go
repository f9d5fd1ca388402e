package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a vocabulary file. A missing file yields DefaultVocabulary.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultVocabulary(), nil
		}
		return nil, err
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	if err := v.normalize(); err != nil {
		return nil, fmt.Errorf("vocabulary %s: %w", path, err)
	}
	return &v, nil
}

// normalize lower-cases every token and makes sure the fallback route is
// itself a member of the route set.
func (v *Vocabulary) normalize() error {
	if len(v.Routes) == 0 {
		return fmt.Errorf("no routes defined")
	}
	seen := make(map[string]bool, len(v.Routes))
	routes := make([]string, 0, len(v.Routes))
	for _, r := range v.Routes {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		if strings.ContainsAny(r, " \t=,") {
			return fmt.Errorf("route %q must be a single token", r)
		}
		seen[r] = true
		routes = append(routes, r)
	}
	v.Routes = routes

	v.FallbackRoute = strings.ToLower(strings.TrimSpace(v.FallbackRoute))
	if v.FallbackRoute == "" {
		v.FallbackRoute = "direct"
	}
	if !seen[v.FallbackRoute] {
		v.Routes = append(v.Routes, v.FallbackRoute)
	}

	if len(v.Modes) == 0 {
		v.Modes = DefaultVocabulary().Modes
		return nil
	}
	modes := make(map[string][]string, len(v.Modes))
	for canonical, aliases := range v.Modes {
		c := strings.ToLower(strings.TrimSpace(canonical))
		if c == "" {
			continue
		}
		for _, a := range aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				modes[c] = append(modes[c], a)
			}
		}
		if _, ok := modes[c]; !ok {
			modes[c] = nil
		}
	}
	v.Modes = modes
	return nil
}

// DefaultVocabulary returns the built-in routes and protection modes.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Version: "0.1",
		Routes: []string{
			"monitor",
			"log_analyst",
			"config_manager",
			"threat_intel",
			"tuner",
			"reporter",
			"rag_agent",
			"direct",
		},
		FallbackRoute: "direct",
		Modes: map[string][]string{
			"block":  {"blocking"},
			"detect": {"default", "detection"},
			"off":    {"disable", "disabled"},
		},
	}
}
