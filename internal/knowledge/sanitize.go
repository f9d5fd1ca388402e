package knowledge

import (
	"regexp"
	"strings"
	"unicode/utf8"

	unicheck "github.com/mofangju/security-agent/internal/unicode"
)

// DefaultMaxChunkChars bounds a sanitized chunk.
const DefaultMaxChunkChars = 1500

// lineRule drops a retrieved line that reads like an instruction to the model.
type lineRule struct {
	ID       string
	patterns []*regexp.Regexp
}

var lineRules = []lineRule{
	{
		ID: "instruction_override",
		patterns: compilePatterns([]string{
			`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|rules?)`,
			`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(previous\s+)?(instructions?|rules?|guidelines?)`,
			`(?i)forget\s+(all\s+)?(your|previous)\s+(instructions?|rules?)`,
			`(?i)you\s+are\s+now\s+(free|unrestricted|unfiltered)`,
			`(?i)new\s+instructions?:\s+`,
		}),
	},
	{
		ID: "role_prefix",
		patterns: compilePatterns([]string{
			`(?i)^\s*(system|developer|assistant|tool)\s*:`,
		}),
	},
	{
		ID: "persona_switch",
		patterns: compilePatterns([]string{
			`(?i)you\s+are\s+chatgpt`,
			`(?i)\bact\s+as\b`,
		}),
	},
	{
		ID: "chat_template",
		patterns: compilePatterns([]string{
			`(?i)\[INST\]`,
			`(?i)<\|im_start\|>`,
			`(?i)BEGIN\s+HIDDEN\s+INSTRUCTIONS?`,
			`(?i)IMPORTANT:\s*(ignore|disregard|override)`,
		}),
	},
	{
		ID: "prompt_exfiltration",
		patterns: compilePatterns([]string{
			`(?i)(show|reveal|display|print|output)\s+(me\s+)?(your|the)\s+(system\s+)?prompt`,
			`(?i)repeat\s+(your\s+)?(system\s+)?(prompt|instructions?)`,
		}),
	},
	{
		ID: "tool_coercion",
		patterns: compilePatterns([]string{
			`(?i)(call|invoke|run)\s+(the\s+)?(set_protection_mode|add_ip_blacklist|add_ip_whitelist)`,
			`(?i)(disable|turn\s+off|bypass)\s+(the\s+)?(waf|safeline|protection)\s+(now|immediately)`,
		}),
	},
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// SanitizeResult reports what Sanitize removed.
type SanitizeResult struct {
	Text      string
	Dropped   []string // rule IDs, one per dropped line
	Hidden    int      // invisible characters removed
	Truncated bool
}

// Sanitize treats retrieved text as untrusted data: it removes invisible
// characters, drops instruction-like lines and bounds the length.
func Sanitize(text string, maxChars int) SanitizeResult {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	rep := unicheck.Inspect(text, unicheck.MultiLine)
	res := SanitizeResult{Hidden: len(rep.Findings)}

	var kept []string
	for _, line := range strings.Split(rep.Sanitized, "\n") {
		if id := suspiciousLine(line); id != "" {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		kept = append(kept, line)
	}

	clean := strings.TrimSpace(strings.Join(kept, "\n"))
	if utf8.RuneCountInString(clean) > maxChars {
		clean = strings.TrimRight(string([]rune(clean)[:maxChars]), " \t\r\n")
		res.Truncated = true
	}
	res.Text = clean
	return res
}

func suspiciousLine(line string) string {
	for _, r := range lineRules {
		for _, p := range r.patterns {
			if p.MatchString(line) {
				return r.ID
			}
		}
	}
	return ""
}
