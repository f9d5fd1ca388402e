// Package gate is the only path from an operator utterance to a WAF change.
// A change is first proposed under a nonce, then executed exactly once when
// the operator echoes that nonce before it expires. The reply after
// execution is composed from the classified tool result only.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mofangju/security-agent/internal/audit"
	"github.com/mofangju/security-agent/internal/guard"
	"github.com/mofangju/security-agent/internal/intent"
	"github.com/mofangju/security-agent/internal/ledger"
	"github.com/mofangju/security-agent/internal/policy"
	"github.com/mofangju/security-agent/internal/validate"
)

// Audit gate names.
const (
	GateAction    = "action_gate"
	GateValidator = "input_validator"
	GateToolCheck = "tool_result"
)

const (
	DefaultToolTimeout = 15 * time.Second
	DefaultComment     = "Blocked by Lumina after operator confirmation"
	agentName          = "config_manager"
)

// WAF is the side-effecting collaborator, one method per intent kind.
// Implementations return the raw response body; it is classified here.
type WAF interface {
	SetProtectionMode(ctx context.Context, mode string) ([]byte, error)
	AddIPGroupEntry(ctx context.Context, list, ip, comment string) ([]byte, error)
}

// Outcome is the tagged result of one Handle call.
type Outcome string

const (
	OutcomeNoIntent     Outcome = "no_intent"
	OutcomeProposed     Outcome = "proposed"
	OutcomeRejected     Outcome = "rejected_input"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeExecuted     Outcome = "executed"
	OutcomeToolFailed   Outcome = "tool_failed"
	OutcomeCancelled    Outcome = "cancelled"
)

// Result is what the caller shows and logs.
type Result struct {
	Outcome Outcome
	Reason  string
	Message string
	Intent  intent.Intent
	// Pending is set when Outcome is OutcomeProposed.
	Pending *ledger.PendingAction
	// Tool is set when a WAF call was attempted.
	Tool *guard.ToolOutcome
}

// Handled reports whether the gate produced a reply for the turn.
func (r Result) Handled() bool { return r.Outcome != OutcomeNoIntent }

// Options wires a Gate.
type Options struct {
	Ledger         *ledger.Ledger
	WAF            WAF
	Validator      *validate.Validator
	Audit          *audit.Sink
	Logger         *zap.Logger
	ToolTimeout    time.Duration
	DefaultComment string
	Now            func() time.Time
}

// Gate dispatches cancel, confirm and propose.
type Gate struct {
	ledger         *ledger.Ledger
	waf            WAF
	validator      *validate.Validator
	audit          *audit.Sink
	logger         *zap.Logger
	toolTimeout    time.Duration
	defaultComment string
	now            func() time.Time
}

// New builds a Gate. Ledger and WAF are required.
func New(opts Options) *Gate {
	g := &Gate{
		ledger:         opts.Ledger,
		waf:            opts.WAF,
		validator:      opts.Validator,
		audit:          opts.Audit,
		logger:         opts.Logger,
		toolTimeout:    opts.ToolTimeout,
		defaultComment: opts.DefaultComment,
		now:            opts.Now,
	}
	if g.ledger == nil {
		g.ledger = ledger.New(nil, ledger.Options{})
	}
	if g.validator == nil {
		g.validator = validate.New(nil, validate.Options{})
	}
	if g.audit == nil {
		g.audit = audit.Nop()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	g.logger = g.logger.Named("gate")
	if g.toolTimeout <= 0 {
		g.toolTimeout = DefaultToolTimeout
	}
	if g.defaultComment == "" {
		g.defaultComment = DefaultComment
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// HasPending reports whether the session holds a live pending action.
func (g *Gate) HasPending(ctx context.Context, session string) bool {
	state, err := g.ledger.State(ctx, session, g.now())
	if err != nil {
		g.logger.Warn("ledger state lookup failed", zap.String("session", session), zap.Error(err))
		return false
	}
	return state == ledger.StatePending
}

// Handle runs one operator message through the gate.
func (g *Gate) Handle(ctx context.Context, corr audit.Correlation, text string) Result {
	session := corr.SessionID
	pending := g.HasPending(ctx, session)

	if intent.IsCancel(text) {
		return g.cancel(ctx, corr, pending)
	}
	if intent.IsConfirmation(text) && (pending || intent.HasExplicitNonce(text)) {
		return g.confirm(ctx, corr, text)
	}

	in := intent.Infer(text)
	if in.IsNone() {
		return Result{Outcome: OutcomeNoIntent, Intent: intent.None}
	}
	return g.propose(ctx, corr, in)
}

func (g *Gate) cancel(ctx context.Context, corr audit.Correlation, pending bool) Result {
	if err := g.ledger.Cancel(ctx, corr.SessionID); err != nil {
		g.logger.Warn("ledger cancel failed", zap.Error(err))
	}
	reason := "cancelled"
	msg := "Cancelled pending configuration action. Nothing was changed."
	if !pending {
		reason = "nothing_pending"
		msg = "There is no pending configuration action to cancel."
	}
	g.audit.Record(ctx, GateAction, string(policy.DecisionAllow), reason, corr, map[string]any{
		"state": string(ledger.StateCancelled),
	})
	return Result{Outcome: OutcomeCancelled, Reason: reason, Message: msg}
}

func (g *Gate) propose(ctx context.Context, corr audit.Correlation, in intent.Intent) Result {
	clean, reason, msg := g.check(in)
	if reason != "" {
		g.audit.Record(ctx, GateValidator, string(policy.DecisionBlock), reason, corr, map[string]any{
			"intent": string(in.Kind),
		})
		return Result{Outcome: OutcomeRejected, Reason: reason, Message: msg, Intent: in}
	}

	action, err := g.ledger.Propose(ctx, corr.SessionID, clean, g.now())
	if err != nil {
		g.logger.Error("ledger propose failed", zap.Error(err))
		g.audit.Record(ctx, GateAction, string(policy.DecisionBlock), "ledger_error", corr, map[string]any{
			"error": err.Error(),
		})
		return Result{
			Outcome: OutcomeUnauthorized,
			Reason:  "ledger_error",
			Message: "I could not record the change for confirmation, so nothing was changed. Please try again.",
			Intent:  clean,
		}
	}

	g.audit.Record(ctx, GateAction, string(policy.DecisionAudit), "proposed", corr, map[string]any{
		"intent":     string(clean.Kind),
		"preview":    clean.Preview(),
		"expires_at": action.ExpiresAt.UTC().Format(time.RFC3339),
		"state":      string(ledger.StatePending),
	})
	return Result{
		Outcome: OutcomeProposed,
		Reason:  "proposed",
		Message: previewMessage(action, g.ledger.TTL()),
		Intent:  clean,
		Pending: &action,
	}
}

func (g *Gate) confirm(ctx context.Context, corr audit.Correlation, text string) Result {
	action, err := g.ledger.Confirm(ctx, corr.SessionID, text, g.now())
	if err != nil {
		reason := ledger.Reason(err)
		g.audit.Record(ctx, GateAction, string(policy.DecisionBlock), reason, corr, map[string]any{
			"intent": string(action.Intent.Kind),
		})
		return Result{Outcome: OutcomeUnauthorized, Reason: reason, Message: unauthorizedMessage(err), Intent: action.Intent}
	}

	clean, reason, msg := g.check(action.Intent)
	if reason != "" {
		g.audit.Record(ctx, GateValidator, string(policy.DecisionBlock), reason, corr, map[string]any{
			"intent": string(action.Intent.Kind),
			"stage":  "revalidate",
		})
		return Result{Outcome: OutcomeRejected, Reason: reason, Message: msg, Intent: action.Intent}
	}
	g.audit.Record(ctx, GateAction, string(policy.DecisionAllow), "confirmed", corr, map[string]any{
		"intent": string(clean.Kind),
		"state":  string(ledger.StateConfirmed),
	})

	out := g.execute(ctx, clean)
	decision := policy.DecisionAllow
	if !out.OK {
		decision = policy.DecisionBlock
	}
	g.audit.Record(ctx, GateToolCheck, string(decision), out.Reason, corr, map[string]any{
		"intent": string(clean.Kind),
		"detail": out.Message,
	})

	if !out.OK {
		return Result{
			Outcome: OutcomeToolFailed,
			Reason:  out.Reason,
			Message: failureMessage(clean, out.Reason, corr.TraceID),
			Intent:  clean,
			Tool:    &out,
		}
	}
	return Result{
		Outcome: OutcomeExecuted,
		Reason:  out.Reason,
		Message: fmt.Sprintf("Done: %s. SafeLine accepted the request.", clean.Preview()),
		Intent:  clean,
		Tool:    &out,
	}
}

// check validates every payload field and returns the canonical intent,
// or a rejection reason and message.
func (g *Gate) check(in intent.Intent) (intent.Intent, string, string) {
	switch in.Kind {
	case intent.KindSetProtectionMode:
		mode, ok := g.validator.Mode(in.Mode)
		if !ok {
			return in, "invalid_mode", fmt.Sprintf("I can't apply that: %q is not a supported protection mode (block, detect, off).", g.validator.Comment(in.Mode))
		}
		return intent.Intent{Kind: in.Kind, Mode: mode}, "", ""
	case intent.KindAddBlacklistEntry, intent.KindAddWhitelistEntry:
		ip, ok := g.validator.IPOrCIDR(in.IP)
		if !ok {
			return in, "invalid_ip", fmt.Sprintf("I can't apply that: %q is not a valid IPv4 address or CIDR block.", g.validator.Comment(in.IP))
		}
		comment := g.validator.Comment(in.Comment)
		if comment == "" {
			comment = g.validator.Comment(g.defaultComment)
		}
		return intent.Intent{Kind: in.Kind, IP: ip, Comment: comment}, "", ""
	}
	return in, "unsupported_intent", "That change is not something I can apply."
}

// execute performs the single authorized call. Transport errors and
// timeouts become failed outcomes.
func (g *Gate) execute(ctx context.Context, in intent.Intent) guard.ToolOutcome {
	ctx, cancel := context.WithTimeout(ctx, g.toolTimeout)
	defer cancel()

	tool := toolName(in)
	start := time.Now()
	var raw []byte
	var err error
	switch in.Kind {
	case intent.KindSetProtectionMode:
		raw, err = g.waf.SetProtectionMode(ctx, in.Mode)
	case intent.KindAddBlacklistEntry:
		raw, err = g.waf.AddIPGroupEntry(ctx, "blacklist", in.IP, in.Comment)
	case intent.KindAddWhitelistEntry:
		raw, err = g.waf.AddIPGroupEntry(ctx, "whitelist", in.IP, in.Comment)
	}
	elapsed := time.Since(start)

	var out guard.ToolOutcome
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil):
		out = guard.Failure(guard.ReasonTimeout, err.Error())
	case err != nil:
		out = guard.Failure(guard.ReasonTransportError, err.Error())
	default:
		out = guard.ClassifyToolResult(raw)
	}

	status := "ok"
	if !out.OK {
		status = "error"
	}
	g.audit.ObserveToolCall(ctx, agentName, tool, status, elapsed)
	if !out.OK {
		g.logger.Warn("tool call failed", zap.String("tool", tool), zap.String("reason", out.Reason), zap.Duration("elapsed", elapsed))
	}
	return out
}

func toolName(in intent.Intent) string {
	switch in.Kind {
	case intent.KindSetProtectionMode:
		return "set_protection_mode"
	case intent.KindAddBlacklistEntry:
		return "add_ip_blacklist"
	case intent.KindAddWhitelistEntry:
		return "add_ip_whitelist"
	}
	return "none"
}
