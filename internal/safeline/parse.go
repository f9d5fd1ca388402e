package safeline

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event statuses derived from deny and pass counts.
const (
	StatusBlocked = "BLOCKED"
	StatusPartial = "PARTIAL"
	StatusPassed  = "PASSED"
)

// QPSPoint is one non-idle sample.
type QPSPoint struct {
	Time string  `json:"time"`
	QPS  float64 `json:"qps"`
}

// QPSSummary is the normalized traffic view.
type QPSSummary struct {
	CurrentQPS   float64    `json:"current_qps"`
	TotalAttacks int64      `json:"total_attacks"`
	Active       []QPSPoint `json:"active_qps"`
}

// Event is one display-ready attack event.
type Event struct {
	ID        string `json:"id"`
	IP        string `json:"ip"`
	Host      string `json:"host"`
	DstPort   string `json:"dst_port"`
	DenyCount int64  `json:"deny_count"`
	PassCount int64  `json:"pass_count"`
	Status    string `json:"status"`
	Time      string `json:"time"`
	Country   string `json:"country"`
	Finished  bool   `json:"finished"`
}

// EventPage is a normalized events response.
type EventPage struct {
	Total  int64   `json:"total"`
	Events []Event `json:"events"`
}

func decodeObject(raw []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func object(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func text(v any, fallback string) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return fallback
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func nodeQPS(node map[string]any) float64 {
	for _, k := range []string{"qps", "value", "requests"} {
		if n, ok := number(node[k]); ok {
			return n
		}
	}
	// map order is random, so fall back to the largest remaining numeric field
	var best float64
	found := false
	for k, v := range node {
		switch strings.ToLower(k) {
		case "time", "ts", "timestamp":
			continue
		}
		if n, ok := number(v); ok && (!found || n > best) {
			best, found = n, true
		}
	}
	return best
}

// ParseQPS normalizes a TrafficStats document. Malformed input yields a
// zero summary.
func ParseQPS(raw []byte) QPSSummary {
	doc := decodeObject(raw)
	nodes, _ := object(object(doc, "qps"), "data")["nodes"].([]any)

	out := QPSSummary{Active: []QPSPoint{}}
	if n, ok := number(doc["total_attacks"]); ok {
		out.TotalAttacks = int64(n)
	}
	for _, item := range nodes {
		node, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q := nodeQPS(node)
		out.CurrentQPS = q
		if q > 0 {
			out.Active = append(out.Active, QPSPoint{Time: text(node["time"], "?"), QPS: q})
		}
	}
	return out
}

// ParseEvents normalizes an events response.
func ParseEvents(raw []byte) EventPage {
	data := object(decodeObject(raw), "data")
	nodes, _ := data["nodes"].([]any)

	page := EventPage{Events: []Event{}}
	if n, ok := number(data["total"]); ok {
		page.Total = int64(n)
	}
	for _, item := range nodes {
		node, ok := item.(map[string]any)
		if !ok {
			continue
		}
		deny, _ := number(node["deny_count"])
		pass, _ := number(node["pass_count"])

		status := StatusPartial
		switch {
		case deny == 0:
			status = StatusPassed
		case pass == 0:
			status = StatusBlocked
		}

		when := "unknown"
		if ms, ok := number(node["start_at"]); ok && ms > 0 {
			when = time.UnixMilli(int64(ms)).UTC().Format("2006-01-02 15:04:05 UTC")
		}

		finished := true
		if f, ok := node["finished"].(bool); ok {
			finished = f
		}

		page.Events = append(page.Events, Event{
			ID:        text(node["id"], "?"),
			IP:        text(node["ip"], "?"),
			Host:      text(node["host"], "?"),
			DstPort:   text(node["dst_port"], "?"),
			DenyCount: int64(deny),
			PassCount: int64(pass),
			Status:    status,
			Time:      when,
			Country:   text(node["country"], ""),
			Finished:  finished,
		})
	}
	return page
}
