package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mofangju/security-agent/internal/audit"
)

var (
	logFilter  audit.Filter
	logLast    int
	logSummary bool
	logFile    string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit trail",
	Long: `View the audit trail with filtering and summary options.

Examples:
  security-agent log                         # Show all entries
  security-agent log --last 20               # Show last 20 entries
  security-agent log --decision BLOCK        # Show only blocked transitions
  security-agent log --trace 6f1c...         # Everything recorded for one turn
  security-agent log --gate action_gate      # Only action gate decisions
  security-agent log --summary               # Show summary statistics`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilter.TraceID, "trace", "", "Filter by trace ID")
	logCmd.Flags().StringVar(&logFilter.SessionID, "session", "", "Filter by session ID")
	logCmd.Flags().StringVar(&logFilter.Gate, "gate", "", "Filter by gate (route_guard, action_gate, input_validator, tool_result, selfrag)")
	logCmd.Flags().StringVar(&logFilter.Decision, "decision", "", "Filter by decision (ALLOW, AUDIT, BLOCK, FINAL, RETRY, CLARIFY, ESCALATE)")
	logCmd.Flags().StringVar(&logFilter.Event, "event", "", "Filter by event name")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	logCmd.Flags().StringVar(&logFile, "file", "", "Audit file to read (default: audit.path from config)")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	path := logFile
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Audit.Path
	}

	events, err := audit.ReadEvents(path)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := logFilter.Apply(events)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, events, filtered)
		return nil
	}
	printEvents(out, filtered)
	return nil
}

func printEvents(out io.Writer, events []audit.Event) {
	for _, e := range events {
		head := e.Event
		if e.Gate != "" {
			head = fmt.Sprintf("%s %s %s", e.Gate, e.Decision, e.Reason)
		}
		fmt.Fprintf(out, "%s %s %s\n", decisionIcon(e.Decision), formatTimestamp(e.Timestamp), head)
		fmt.Fprintf(out, "     Trace: %s  Session: %s  Turn: %s\n", e.TraceID, e.SessionID, e.TurnID)
		if len(e.Metadata) > 0 {
			keys := make([]string, 0, len(e.Metadata))
			for k := range e.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "     %s: %v\n", k, e.Metadata[k])
			}
		}
		fmt.Fprintln(out)
	}
}

func printSummary(out io.Writer, all []audit.Event, filtered []audit.Event) {
	decisions := map[string]int{}
	gates := map[string]int{}
	turns := 0
	for _, e := range filtered {
		if e.Gate != "" {
			decisions[strings.ToUpper(e.Decision)]++
			gates[e.Gate]++
		}
		if e.Event == "turn_end" {
			turns++
		}
	}

	fmt.Fprintln(out, "===========================================")
	fmt.Fprintln(out, "  Audit Summary")
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintf(out, "  Total events:    %d (%d matching)\n", len(all), len(filtered))
	fmt.Fprintf(out, "  Turns:           %d\n", turns)
	fmt.Fprintf(out, "  ALLOW:           %d\n", decisions["ALLOW"])
	fmt.Fprintf(out, "  AUDIT (flagged): %d\n", decisions["AUDIT"])
	fmt.Fprintf(out, "  BLOCK:           %d\n", decisions["BLOCK"])
	fmt.Fprintf(out, "  Grounded:        %d FINAL, %d ESCALATE\n", decisions["FINAL"], decisions["ESCALATE"])
	fmt.Fprintln(out, "===========================================")

	if len(filtered) > 0 {
		fmt.Fprintf(out, "  First event:     %s\n", formatTimestamp(filtered[0].Timestamp))
		fmt.Fprintf(out, "  Last event:      %s\n", formatTimestamp(filtered[len(filtered)-1].Timestamp))
	}

	if len(gates) > 0 {
		names := make([]string, 0, len(gates))
		for g := range gates {
			names = append(names, g)
		}
		sort.Strings(names)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Decisions by gate:")
		for _, g := range names {
			fmt.Fprintf(out, "    %-16s %d\n", g, gates[g])
		}
	}

	var blocked []audit.Event
	for _, e := range filtered {
		if strings.EqualFold(e.Decision, "BLOCK") {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Blocked transitions:")
		limit := min(len(blocked), 10)
		for _, e := range blocked[len(blocked)-limit:] {
			fmt.Fprintf(out, "    %s %s %s (trace %s)\n", formatTimestamp(e.Timestamp), e.Gate, e.Reason, e.TraceID)
		}
	}

	fmt.Fprintln(out)
}

func decisionIcon(decision string) string {
	switch strings.ToUpper(decision) {
	case "BLOCK", "ESCALATE":
		return "\xf0\x9f\x9b\x91" // stop sign
	case "AUDIT", "RETRY", "CLARIFY":
		return "\xf0\x9f\x94\x8d" // magnifying glass
	case "ALLOW", "FINAL":
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x80\xa2" // bullet
	}
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "unknown"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
