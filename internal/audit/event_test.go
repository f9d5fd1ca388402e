package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvents_MissingFile(t *testing.T) {
	events, err := ReadEvents(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseEvents_SkipsMalformed(t *testing.T) {
	input := `{"ts":"2026-03-01T12:00:00Z","event":"turn_start","trace_id":"a","session_id":"s","turn_id":"1","metadata":{}}
not json

{"ts":"2026-03-01T12:00:01Z","event":"guardrail_decision","gate":"route","decision":"BLOCK","reason":"unrecognized_token","trace_id":"a","session_id":"s","turn_id":"1","metadata":{"raw":"route=monitor"}}
`
	events, err := ParseEvents(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "route=monitor", events[1].Metadata["raw"])
}

func TestFilter(t *testing.T) {
	events := []Event{
		{Event: "turn_start", TraceID: "a", SessionID: "s1", TurnID: "1"},
		{Event: EventGuardrail, Gate: "route", Decision: "ALLOW", TraceID: "a", SessionID: "s1", TurnID: "1"},
		{Event: EventGuardrail, Gate: "action_gate", Decision: "BLOCK", TraceID: "b", SessionID: "s2", TurnID: "1"},
		{Event: EventGuardrail, Gate: "action_gate", Decision: "ALLOW", TraceID: "c", SessionID: "s2", TurnID: "2"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []Event
	}{
		{"empty", Filter{}, events},
		{"trace", Filter{TraceID: "a"}, events[:2]},
		{"session and turn", Filter{SessionID: "s2", TurnID: "2"}, events[3:]},
		{"gate case-insensitive", Filter{Gate: "ACTION_GATE", Decision: "block"}, events[2:3]},
		{"event", Filter{Event: "turn_start"}, events[:1]},
		{"nothing", Filter{TraceID: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.filter.Apply(events)); diff != "" {
				t.Errorf("Apply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadEvents_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"event":"x","trace_id":"t","session_id":"s","turn_id":"u","metadata":{}}`+"\n"), 0600))
	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Event)
}
