// Package assistant runs one conversational turn: it routes the operator's
// message through the supervisor, dispatches to a specialist and records the
// turn in the audit trail.
package assistant

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mofangju/security-agent/internal/audit"
	"github.com/mofangju/security-agent/internal/gate"
	"github.com/mofangju/security-agent/internal/guard"
	"github.com/mofangju/security-agent/internal/intent"
	"github.com/mofangju/security-agent/internal/llm"
	"github.com/mofangju/security-agent/internal/policy"
	"github.com/mofangju/security-agent/internal/selfrag"
	"github.com/mofangju/security-agent/internal/taxonomy"
)

// GateRoute is the audit gate name for supervisor route decisions.
const GateRoute = "route_guard"

// Route decision reasons added on top of guard's classification reasons.
const (
	ReasonPendingAction = "pending_action"
	ReasonActionIntent  = "action_intent"
	ReasonRouterError   = "router_error"
)

const (
	supervisorAgent      = "supervisor"
	DefaultToolTimeout   = 15 * time.Second
	DefaultModelTimeout  = 60 * time.Second
	DefaultSearchTimeout = 10 * time.Second
	maxMessageChars    = 8000
)

// ErrEmptyMessage is returned for a blank operator message.
var ErrEmptyMessage = errors.New("message is required")

// WAFReader is the read-only SafeLine surface the specialists use.
type WAFReader interface {
	SystemInfo(ctx context.Context) ([]byte, error)
	AttackEvents(ctx context.Context, page, pageSize int) ([]byte, error)
	TrafficStats(ctx context.Context) ([]byte, error)
}

// TurnRequest is one inbound operator message.
type TurnRequest struct {
	SessionID string
	Message   string
	Scope     selfrag.Scope
}

// Grounding summarizes the grounding loop outcome of a rag_agent turn.
type Grounding struct {
	Decision  guard.Verdict `json:"decision"`
	Reason    string        `json:"reason"`
	Citations []int         `json:"citations,omitempty"`
	Attempts  int           `json:"attempts"`
}

// Reply is the outcome of one turn.
type Reply struct {
	SessionID    string     `json:"session_id"`
	TraceID      string     `json:"trace_id"`
	TurnID       string     `json:"turn_id"`
	Route        string     `json:"route"`
	RouteReason  string     `json:"route_reason"`
	Text         string     `json:"reply"`
	Outcome      string     `json:"outcome,omitempty"`
	Pending      bool       `json:"pending_action"`
	Grounding    *Grounding `json:"grounding,omitempty"`
	MessageCount int        `json:"message_count"`
}

// Options wires an Assistant. LLM and Gate are required; everything else
// degrades.
type Options struct {
	LLM           llm.Client
	Router        llm.Client
	Gate          *gate.Gate
	Grounding     *selfrag.Loop
	WAF           WAFReader
	Knowledge     selfrag.Retriever
	Catalog       *taxonomy.Catalog
	Vocabulary    *policy.Vocabulary
	Sessions      *SessionStore
	Audit         *audit.Sink
	Logger        *zap.Logger
	ToolTimeout   time.Duration
	ModelTimeout  time.Duration // per router and specialist model call
	SearchTimeout time.Duration // per reference search
	Now           func() time.Time
}

// Assistant is safe for concurrent use; turns within one session are
// serialized by the session store.
type Assistant struct {
	llm           llm.Client
	router        llm.Client
	gate          *gate.Gate
	grounding     *selfrag.Loop
	waf           WAFReader
	knowledge     selfrag.Retriever
	catalog       *taxonomy.Catalog
	vocab         *guard.Vocabulary
	sessions      *SessionStore
	audit         *audit.Sink
	logger        *zap.Logger
	toolTimeout   time.Duration
	modelTimeout  time.Duration
	searchTimeout time.Duration
	now           func() time.Time
}

// New builds an Assistant.
func New(opts Options) (*Assistant, error) {
	if opts.LLM == nil {
		return nil, errors.New("assistant: llm client is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("assistant: action gate is required")
	}
	a := &Assistant{
		llm:           opts.LLM,
		router:        opts.Router,
		gate:          opts.Gate,
		grounding:     opts.Grounding,
		waf:           opts.WAF,
		knowledge:     opts.Knowledge,
		catalog:       opts.Catalog,
		vocab:         guard.NewVocabulary(opts.Vocabulary),
		sessions:      opts.Sessions,
		audit:         opts.Audit,
		logger:        opts.Logger,
		toolTimeout:   opts.ToolTimeout,
		modelTimeout:  opts.ModelTimeout,
		searchTimeout: opts.SearchTimeout,
		now:           opts.Now,
	}
	if a.router == nil {
		a.router = a.llm
	}
	if a.catalog == nil {
		a.catalog = taxonomy.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.sessions == nil {
		a.sessions = NewSessionStore(time.Hour, 1000, a.now)
	}
	if a.audit == nil {
		a.audit = audit.Nop()
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.Named("assistant")
	if a.toolTimeout <= 0 {
		a.toolTimeout = DefaultToolTimeout
	}
	if a.modelTimeout <= 0 {
		a.modelTimeout = DefaultModelTimeout
	}
	if a.searchTimeout <= 0 {
		a.searchTimeout = DefaultSearchTimeout
	}
	return a, nil
}

// turn carries the per-turn state through a specialist.
type turn struct {
	corr    audit.Correlation
	route   string
	message string
	scope   selfrag.Scope
	history []llm.Message
	reply   *Reply
}

// Turn handles one operator message end to end.
func (a *Assistant) Turn(ctx context.Context, req TurnRequest) (Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	if r := []rune(message); len(r) > maxMessageChars {
		message = string(r[:maxMessageChars])
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess, release := a.sessions.Acquire(sessionID)
	defer release()

	start := a.now()
	sess.Turns++
	corr := audit.Correlation{
		TraceID:   uuid.NewString(),
		SessionID: sessionID,
		TurnID:    strconv.Itoa(sess.Turns),
	}
	reply := &Reply{SessionID: sessionID, TraceID: corr.TraceID, TurnID: corr.TurnID}
	a.audit.Emit(ctx, "turn_start", corr, map[string]any{
		"message_chars": len([]rune(message)),
		"history":       len(sess.History),
	})

	t := &turn{
		corr:    corr,
		message: message,
		scope:   req.Scope,
		history: append([]llm.Message(nil), sess.History...),
		reply:   reply,
	}
	decision := a.route(ctx, t)
	t.route = decision.Route
	reply.Route, reply.RouteReason = decision.Route, decision.Reason
	a.audit.ObserveRoute(ctx, decision.Route)
	a.audit.ObserveHandoff(ctx, supervisorAgent, decision.Route)

	reply.Text = a.dispatch(ctx, t)
	reply.Pending = a.gate.HasPending(ctx, sessionID)

	sess.Append(
		llm.Message{Role: llm.RoleUser, Content: message},
		llm.Message{Role: llm.RoleAssistant, Content: reply.Text},
	)
	reply.MessageCount = len(sess.History)

	elapsed := a.now().Sub(start)
	a.audit.ObserveTurn(ctx, elapsed)
	a.audit.Emit(ctx, "turn_end", corr, map[string]any{
		"route":       reply.Route,
		"outcome":     reply.Outcome,
		"pending":     reply.Pending,
		"duration_ms": elapsed.Milliseconds(),
	})
	a.logger.Debug("turn complete",
		zap.String("session", sessionID),
		zap.String("trace_id", corr.TraceID),
		zap.String("route", reply.Route),
		zap.Duration("elapsed", elapsed))
	return *reply, nil
}

// route picks the specialist. A live pending action or an explicit change
// request always goes to config_manager so the action gate sees it;
// otherwise the supervisor model's output is classified against the closed
// route vocabulary.
func (a *Assistant) route(ctx context.Context, t *turn) guard.RouteDecision {
	var d guard.RouteDecision
	switch {
	case a.gate.HasPending(ctx, t.corr.SessionID):
		d = guard.RouteDecision{Route: routeConfig, Reason: ReasonPendingAction}
	case wantsAction(t.message):
		d = guard.RouteDecision{Route: routeConfig, Reason: ReasonActionIntent}
	default:
		routeCtx, cancel := context.WithTimeout(ctx, a.modelTimeout)
		raw, err := a.router.Chat(routeCtx, supervisorSystem, append(t.history, llm.Message{Role: llm.RoleUser, Content: t.message}))
		cancel()
		if err != nil {
			a.logger.Warn("supervisor routing failed", zap.Error(err))
			d = guard.RouteDecision{Route: a.vocab.Fallback(), Reason: ReasonRouterError, Fallback: true}
		} else {
			d = a.vocab.ClassifyRoute(raw)
		}
	}

	decision := policy.DecisionAllow
	if d.Fallback {
		decision = policy.DecisionAudit
	}
	a.audit.Record(ctx, GateRoute, string(decision), d.Reason, t.corr, map[string]any{
		"route":    d.Route,
		"fallback": d.Fallback,
	})
	return d
}

// wantsAction reports whether text is a change request or a confirmation
// carrying its own code. Cancels only matter with a pending action, which
// is routed earlier.
func wantsAction(text string) bool {
	if intent.HasExplicitNonce(text) && intent.IsConfirmation(text) {
		return true
	}
	return intent.Infer(text).SideEffecting()
}
