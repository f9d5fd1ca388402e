package guard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool result failure reasons.
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonNotObject        = "not_object"
	ReasonErrorIndicator   = "error_indicator"
	ReasonUnexpectedStatus = "unexpected_status"
	ReasonOK               = "ok"
	ReasonTimeout          = "timeout"
	ReasonTransportError   = "transport_error"
)

// errorKeys are the object keys whose non-empty value marks a failed call.
// SafeLine's open API reports failures under "err".
var errorKeys = []string{"error", "err"}

// ToolOutcome is the strict result of one external tool call.
type ToolOutcome struct {
	OK      bool
	Message string
	Reason  string
}

// Failure builds a failed outcome with an operator-facing detail.
func Failure(reason, message string) ToolOutcome {
	return ToolOutcome{OK: false, Reason: reason, Message: message}
}

// ClassifyToolResult decides success purely from the structure of raw:
// it must be a JSON object with no error indicator and, when a status is
// present, a status of ok or success.
func ClassifyToolResult(raw []byte) ToolOutcome {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Failure(ReasonInvalidJSON, "tool response was empty")
	}

	var payload any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return Failure(ReasonInvalidJSON, "tool response was not valid JSON")
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return Failure(ReasonNotObject, "tool response was not an object")
	}

	for _, key := range errorKeys {
		if v, present := obj[key]; present && !isEmpty(v) {
			return Failure(ReasonErrorIndicator, fmt.Sprintf("%s: %s", key, render(v)))
		}
	}

	if v, present := obj["status"]; present && !isEmpty(v) {
		status := strings.ToLower(strings.TrimSpace(render(v)))
		if status != "ok" && status != "success" {
			return Failure(ReasonUnexpectedStatus, "unexpected status: "+status)
		}
	}

	return ToolOutcome{OK: true, Reason: ReasonOK}
}

// isEmpty mirrors JSON falsiness for the values an API puts in an error slot.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
