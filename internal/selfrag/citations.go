package selfrag

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// Citation check results.
const (
	CheckOK               = "ok"
	CheckNoEvidence       = "no_evidence"
	CheckMissingCitations = "missing_citations"
	checkOutOfRangePrefix = "citation_out_of_range:"
)

// ExtractCitations returns the distinct bracketed indices in text, sorted.
// Markers too large to parse are returned as -1 so they fail the range check.
func ExtractCitations(text string) []int {
	seen := make(map[int]struct{})
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			n = -1
		}
		seen[n] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// CheckCitations enforces the grounding contract: every index lies in
// [0, evidenceCount) and at least minCitations distinct indices are cited.
func CheckCitations(citations []int, evidenceCount, minCitations int) (bool, string) {
	if evidenceCount <= 0 {
		return false, CheckNoEvidence
	}
	for _, idx := range citations {
		if idx < 0 || idx >= evidenceCount {
			return false, fmt.Sprintf("%s%d", checkOutOfRangePrefix, idx)
		}
	}
	if len(citations) < minCitations {
		return false, CheckMissingCitations
	}
	return true, CheckOK
}

// FormatEvidence renders chunks as numbered blocks for a prompt.
func FormatEvidence(evidence []EvidenceChunk) string {
	blocks := make([]string, 0, len(evidence))
	for _, e := range evidence {
		source := e.Source
		if source == "" {
			source = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[%d] source=%s section=%s\n%s", e.Index, source, e.Section, e.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// sourcesFooter lists only the cited chunks.
func sourcesFooter(evidence []EvidenceChunk, citations []int) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Sources:")
	for _, idx := range citations {
		e := evidence[idx]
		fmt.Fprintf(&b, "\n[%d] %s", idx, e.Source)
		if e.Section != "" {
			fmt.Fprintf(&b, " (%s)", e.Section)
		}
	}
	return b.String()
}
