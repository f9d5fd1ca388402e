package taxonomy

// Entry describes one attack class as seen by the WAF: its weakness
// mapping, severity and the remediation an engineer should apply.
type Entry struct {
	ID             string              `yaml:"id"`
	Name           string              `yaml:"name"`
	RiskLevel      string              `yaml:"risk_level"` // "critical", "high", "medium", "low"
	Abstract       string              `yaml:"abstract"`
	Recommendation string              `yaml:"recommendation"`
	Keywords       []string            `yaml:"keywords"`
	Compliance     map[string][]string `yaml:"compliance"` // standard-id → item IDs
	References     Refs                `yaml:"references"`
}

// Refs holds external references for an entry.
type Refs struct {
	CWE      []string      `yaml:"cwe"`
	External []ExternalRef `yaml:"external"`
}

// ExternalRef is a link to an external resource.
type ExternalRef struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

// File is the YAML layout of one catalog file.
type File struct {
	Entries []Entry `yaml:"entries"`
}
