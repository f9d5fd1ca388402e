package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed attacks.yaml
var builtinCatalog []byte

// DefaultCategories are looked up when a question names no attack class.
var DefaultCategories = []string{"sqli", "xss", "traversal", "cmdi"}

// Catalog holds all loaded attack entries.
type Catalog struct {
	Entries []Entry
	ByID    map[string]Entry // attack ID → entry
}

// Default returns the built-in catalog.
func Default() *Catalog {
	cat, err := parseCatalog(builtinCatalog)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: built-in catalog: %v", err))
	}
	return cat
}

// LoadCatalog merges the built-in catalog with every YAML file in dir.
// Files prefixed with underscore are drafts and skipped. Entries in dir
// replace built-in entries with the same ID.
func LoadCatalog(dir string) (*Catalog, error) {
	cat := Default()

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return cat, nil
		}
		return nil, fmt.Errorf("reading catalog dir: %w", err)
	}

	for _, f := range files {
		name := f.Name()
		if f.IsDir() || strings.HasPrefix(name, "_") {
			continue
		}
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading catalog %s: %w", name, err)
		}
		extra, err := parseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parsing catalog %s: %w", name, err)
		}
		for _, e := range extra.Entries {
			cat.add(e)
		}
	}
	return cat, nil
}

func parseCatalog(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	cat := &Catalog{ByID: make(map[string]Entry, len(f.Entries))}
	for _, e := range f.Entries {
		if strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("entry %q has no id", e.Name)
		}
		cat.add(e)
	}
	return cat, nil
}

func (c *Catalog) add(e Entry) {
	e.ID = normalizeID(e.ID)
	if _, exists := c.ByID[e.ID]; exists {
		for i := range c.Entries {
			if c.Entries[i].ID == e.ID {
				c.Entries[i] = e
			}
		}
	} else {
		c.Entries = append(c.Entries, e)
	}
	c.ByID[e.ID] = e
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Lookup returns the entry for an attack category such as "sqli".
func (c *Catalog) Lookup(category string) (Entry, bool) {
	e, ok := c.ByID[normalizeID(category)]
	return e, ok
}

// IDs lists the known categories in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.ByID))
	for id := range c.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Match returns the entries whose ID or keywords occur in text, in
// catalog order.
func (c *Catalog) Match(text string) []Entry {
	lower := strings.ToLower(text)
	var out []Entry
	for _, e := range c.Entries {
		if containsWord(lower, e.ID) {
			out = append(out, e)
			continue
		}
		for _, kw := range e.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Relevant is Match with a fallback to DefaultCategories.
func (c *Catalog) Relevant(text string) []Entry {
	if m := c.Match(text); len(m) > 0 {
		return m
	}
	var out []Entry
	for _, id := range DefaultCategories {
		if e, ok := c.Lookup(id); ok {
			out = append(out, e)
		}
	}
	return out
}

func containsWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

// Format renders an entry as a compact block for a prompt.
func (e Entry) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", e.Name, strings.Join(e.References.CWE, ", "))
	fmt.Fprintf(&b, "Severity: %s\n", e.RiskLevel)
	stds := make([]string, 0, len(e.Compliance))
	for std := range e.Compliance {
		stds = append(stds, std)
	}
	sort.Strings(stds)
	for _, std := range stds {
		fmt.Fprintf(&b, "%s: %s\n", std, strings.Join(e.Compliance[std], "; "))
	}
	fmt.Fprintf(&b, "Description: %s\n", e.Abstract)
	fmt.Fprintf(&b, "Remediation: %s", e.Recommendation)
	return b.String()
}
