package audit

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"
)

// Correlation ties an event to one conversation turn.
type Correlation struct {
	TraceID   string `json:"trace_id"`
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
}

// Event is one line of the audit trail.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Event     string         `json:"event"`
	Gate      string         `json:"gate,omitempty"`
	Decision  string         `json:"decision,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	TraceID   string         `json:"trace_id"`
	SessionID string         `json:"session_id"`
	TurnID    string         `json:"turn_id"`
	Metadata  map[string]any `json:"metadata"`
}

// Filter selects events; empty fields match everything.
type Filter struct {
	TraceID   string
	SessionID string
	TurnID    string
	Gate      string
	Decision  string
	Event     string
}

// Match reports whether e passes every non-empty field of f.
func (f Filter) Match(e Event) bool {
	if f.TraceID != "" && e.TraceID != f.TraceID {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.TurnID != "" && e.TurnID != f.TurnID {
		return false
	}
	if f.Gate != "" && !strings.EqualFold(e.Gate, f.Gate) {
		return false
	}
	if f.Decision != "" && !strings.EqualFold(e.Decision, f.Decision) {
		return false
	}
	if f.Event != "" && !strings.EqualFold(e.Event, f.Event) {
		return false
	}
	return true
}

// Apply returns the events that match f, in order.
func (f Filter) Apply(events []Event) []Event {
	if f == (Filter{}) {
		return events
	}
	var out []Event
	for _, e := range events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// ReadEvents loads an audit file. A missing file is an empty trail.
func ReadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return ParseEvents(file)
}

// ParseEvents decodes newline-delimited events, skipping malformed lines.
func ParseEvents(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}
