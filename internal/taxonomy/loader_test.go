package taxonomy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_BuiltinCatalog(t *testing.T) {
	cat := Default()

	want := []string{"cmdi", "sqli", "ssrf", "traversal", "xss"}
	got := cat.IDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}

	validLevels := map[string]bool{"critical": true, "high": true, "medium": true, "low": true}
	for _, entry := range cat.Entries {
		if entry.Name == "" {
			t.Errorf("[%s] missing name", entry.ID)
		}
		if !validLevels[entry.RiskLevel] {
			t.Errorf("[%s] invalid risk_level %q", entry.ID, entry.RiskLevel)
		}
		if len(entry.References.CWE) == 0 {
			t.Errorf("[%s] missing CWE reference", entry.ID)
		}
		if entry.Recommendation == "" {
			t.Errorf("[%s] missing recommendation", entry.ID)
		}
	}
}

func TestLookup(t *testing.T) {
	cat := Default()

	e, ok := cat.Lookup("  SQLi ")
	if !ok {
		t.Fatal("expected sqli entry")
	}
	if e.References.CWE[0] != "CWE-89" {
		t.Errorf("sqli CWE = %v", e.References.CWE)
	}
	if _, ok := cat.Lookup("ldap"); ok {
		t.Error("unexpected entry for unknown category")
	}
}

func TestMatch(t *testing.T) {
	cat := Default()

	tests := []struct {
		text string
		want []string
	}{
		{"is this SQL injection or XSS?", []string{"sqli", "xss"}},
		{"saw ../../etc/passwd in the path", []string{"traversal"}},
		{"m_ssrf hits spiked", []string{"ssrf"}},
		{"how is traffic today", nil},
	}
	for _, tt := range tests {
		var got []string
		for _, e := range cat.Match(tt.text) {
			got = append(got, e.ID)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestRelevantFallsBackToDefaults(t *testing.T) {
	got := Default().Relevant("any threats I should worry about?")
	if len(got) != len(DefaultCategories) {
		t.Fatalf("expected %d default entries, got %d", len(DefaultCategories), len(got))
	}
	for i, id := range DefaultCategories {
		if got[i].ID != id {
			t.Errorf("entry %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestLoadCatalog_MissingDir(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(cat.Entries) != len(Default().Entries) {
		t.Errorf("expected built-in entries only")
	}
}

func TestLoadCatalog_OverridesAndDrafts(t *testing.T) {
	dir := t.TempDir()

	custom := `entries:
  - id: SQLI
    name: "SQL Injection (site notes)"
    risk_level: critical
    abstract: "Local override."
    recommendation: "Use the ORM."
    references:
      cwe: ["CWE-89"]
  - id: ldap
    name: "LDAP Injection"
    risk_level: high
    abstract: "LDAP filters built from input."
    recommendation: "Escape filter values."
    keywords: ["ldap"]
    references:
      cwe: ["CWE-90"]
`
	if err := os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(custom), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "_draft.yaml"), []byte("entries: [{id: draft, name: x}]"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cat, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	if e, _ := cat.Lookup("sqli"); e.Recommendation != "Use the ORM." {
		t.Errorf("override not applied: %q", e.Recommendation)
	}
	if _, ok := cat.Lookup("ldap"); !ok {
		t.Error("custom entry missing")
	}
	if _, ok := cat.Lookup("draft"); ok {
		t.Error("draft file should be skipped")
	}
	if len(cat.Entries) != len(cat.ByID) {
		t.Errorf("Entries (%d) and ByID (%d) disagree", len(cat.Entries), len(cat.ByID))
	}
}

func TestLoadCatalog_RejectsEntryWithoutID(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("entries: [{name: nameless}]"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCatalog(dir); err == nil {
		t.Error("expected error for entry without id")
	}
}

func TestEntryFormat(t *testing.T) {
	e, _ := Default().Lookup("xss")
	out := e.Format()
	for _, want := range []string{"Cross-Site Scripting (XSS) (CWE-79)", "Severity: high", "owasp-top10-2021: A03:2021 - Injection", "Remediation:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
}
