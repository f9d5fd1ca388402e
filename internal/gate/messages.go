package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/mofangju/security-agent/internal/guard"
	"github.com/mofangju/security-agent/internal/intent"
	"github.com/mofangju/security-agent/internal/ledger"
)

func previewMessage(action ledger.PendingAction, ttl time.Duration) string {
	return fmt.Sprintf(
		"Please confirm before I apply this change: %s.\nReply with 'confirm %s' within %s to proceed, or 'cancel' to abort.",
		action.Intent.Preview(), action.Nonce, humanDuration(ttl),
	)
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNoPendingAction):
		return "There is no pending action to confirm (no pending action). Nothing was changed."
	case errors.Is(err, ledger.ErrExpired):
		return "That confirmation has expired, so nothing was changed. Ask again to get a new confirmation code."
	case errors.Is(err, ledger.ErrNonceMismatch):
		return "That confirmation code does not match (invalid token). Reply with 'confirm' followed by the code shown, or 'cancel'."
	}
	return "I could not verify the confirmation, so nothing was changed."
}

// failureMessage never describes the change as done; the tool detail stays
// in the audit trail under the trace id. Only an explicit rejection from
// SafeLine lets the reply say the configuration is unchanged.
func failureMessage(in intent.Intent, reason, traceID string) string {
	var msg string
	switch reason {
	case guard.ReasonTimeout, guard.ReasonTransportError, guard.ReasonInvalidJSON, guard.ReasonNotObject:
		msg = fmt.Sprintf("I could not complete the request to %s. I did not get a usable answer from SafeLine, so the result is unknown. Please check %s before retrying.",
			in.Preview(), verifyHint(in))
	default:
		msg = fmt.Sprintf("I could not complete the request to %s. SafeLine rejected it, so the previous configuration is unchanged.", in.Preview())
	}
	if traceID != "" {
		msg += fmt.Sprintf(" Reference: %s.", traceID)
	}
	return msg
}

func verifyHint(in intent.Intent) string {
	switch in.Kind {
	case intent.KindAddBlacklistEntry, intent.KindAddWhitelistEntry:
		return "the SafeLine IP lists"
	}
	return "the current SafeLine protection mode"
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	default:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
}
