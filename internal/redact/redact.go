// Package redact masks credentials before text reaches the audit trail.
package redact

import (
	"regexp"
)

var sensitivePatterns = []*regexp.Regexp{
	// SafeLine open API token, as header or key=value
	regexp.MustCompile(`(?i)(x-slce-api-token|safeline_api_token)\s*[=:]\s*['"]?[A-Za-z0-9._-]{8,}['"]?`),

	// LLM provider keys
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`(?i)(openai_api_key|google_api_key)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),

	// Generic API keys
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),

	// Credentials embedded in URLs (https://u:p@, redis://:p@)
	regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^:/\s@]*:[^@\s]+@`),

	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

const redactedPlaceholder = "[REDACTED]"

// Redact replaces every credential-looking span in input.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// Metadata returns a copy of md with every string value redacted. Nested
// maps and slices are walked; other values are copied as-is.
func Metadata(md map[string]any) map[string]any {
	if md == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = value(v)
	}
	return out
}

func value(v any) any {
	switch t := v.(type) {
	case string:
		return Redact(t)
	case error:
		return Redact(t.Error())
	case map[string]any:
		return Metadata(t)
	case []string:
		cp := make([]string, len(t))
		for i, s := range t {
			cp[i] = Redact(s)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = value(e)
		}
		return cp
	default:
		return v
	}
}
