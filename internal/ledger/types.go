package ledger

import (
	"errors"
	"time"

	"github.com/mofangju/security-agent/internal/intent"
)

// State is a session's position in the confirmation state machine. Only
// NONE and PENDING are stored; the others describe the transition just taken.
type State string

const (
	StateNone      State = "NONE"
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
	StateCancelled State = "CANCELLED"
	StateExpired   State = "EXPIRED"
)

var (
	ErrNoPendingAction = errors.New("no pending action")
	ErrExpired         = errors.New("expired")
	ErrNonceMismatch   = errors.New("invalid token")
)

// PendingAction is the single unconfirmed intent held for a session.
type PendingAction struct {
	Session   string        `json:"session"`
	Intent    intent.Intent `json:"intent"`
	Nonce     string        `json:"nonce"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the action can no longer be confirmed at now.
func (p PendingAction) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Reason maps a Confirm error onto the audit reason vocabulary.
func Reason(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrNoPendingAction):
		return "no_pending_action"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNonceMismatch):
		return "nonce_mismatch"
	}
	return "store_error"
}
