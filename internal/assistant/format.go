package assistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mofangju/security-agent/internal/safeline"
	"github.com/mofangju/security-agent/internal/selfrag"
	"github.com/mofangju/security-agent/internal/taxonomy"
)

const maxListedEvents = 10

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatQPSSummary(s safeline.QPSSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QPS summary: current=%s, total_attacks=%d", formatNumber(s.CurrentQPS), s.TotalAttacks)
	if len(s.Active) == 0 {
		b.WriteString("\nNo traffic recorded in the sampled window.")
		return b.String()
	}
	var peak safeline.QPSPoint
	for _, p := range s.Active {
		if p.QPS > peak.QPS {
			peak = p
		}
	}
	fmt.Fprintf(&b, "\nActive samples: %d, peak %s at %s", len(s.Active), formatNumber(peak.QPS), peak.Time)
	return b.String()
}

func formatEventsSummary(p safeline.EventPage) string {
	if len(p.Events) == 0 {
		return fmt.Sprintf("Attack events: total=%d. No events in this page.", p.Total)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Attack events: total=%d, showing %d", p.Total, min(len(p.Events), maxListedEvents))
	for i, e := range p.Events {
		if i == maxListedEvents {
			fmt.Fprintf(&b, "\n... %d more in this page", len(p.Events)-maxListedEvents)
			break
		}
		fmt.Fprintf(&b, "\n- %s %s -> %s:%s deny=%d pass=%d [%s]", e.Time, e.IP, e.Host, e.DstPort, e.DenyCount, e.PassCount, e.Status)
		if e.Country != "" {
			fmt.Fprintf(&b, " country=%s", e.Country)
		}
		if !e.Finished {
			b.WriteString(" ongoing")
		}
	}
	return b.String()
}

func formatCatalog(entries []taxonomy.Entry) string {
	if len(entries) == 0 {
		return "No catalog entries matched."
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Format())
	}
	return strings.Join(parts, "\n\n")
}

func formatReference(evidence []selfrag.EvidenceChunk) string {
	if len(evidence) == 0 {
		return "No reference material found."
	}
	return selfrag.FormatEvidence(evidence)
}
