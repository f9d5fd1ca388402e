// Package audit is the append-only decision trail and the metrics that
// summarize it. Recording never fails the caller: write errors are counted
// and surfaced through Health.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mofangju/security-agent/internal/redact"
)

// EventGuardrail is the event name used by Record.
const EventGuardrail = "guardrail_decision"

// Options configures a Sink.
type Options struct {
	// Path is the JSONL file; empty disables persistence.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Namespace  string
	Logger     *zap.Logger
	Now        func() time.Time
}

// Health is the sink's own status signal.
type Health struct {
	Healthy       bool   `json:"healthy"`
	WriteFailures int64  `json:"write_failures"`
	LastError     string `json:"last_error,omitempty"`
}

// Sink appends events and keeps counters and histograms.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer

	metrics *metrics
	logger  *zap.Logger
	now     func() time.Time

	failures atomic.Int64
	lastErr  atomic.Value
}

// New opens a rotating audit file at opts.Path.
func New(opts Options) (*Sink, error) {
	if opts.Path == "" {
		return NewWithWriter(nil, opts)
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	s, err := NewWithWriter(lj, opts)
	if err != nil {
		return nil, err
	}
	s.closer = lj
	return s, nil
}

// NewWithWriter records to w. A nil w keeps metrics only.
func NewWithWriter(w io.Writer, opts Options) (*Sink, error) {
	m, err := newMetrics(opts.Namespace)
	if err != nil {
		return nil, fmt.Errorf("audit metrics: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sink{w: w, metrics: m, logger: logger.Named("audit"), now: now}, nil
}

// Nop returns a sink that only counts.
func Nop() *Sink {
	s, err := NewWithWriter(nil, Options{})
	if err != nil {
		panic(err)
	}
	return s
}

// Record appends a guardrail decision and bumps its counter.
func (s *Sink) Record(ctx context.Context, gate, decision, reason string, corr Correlation, metadata map[string]any) {
	s.metrics.guardrail(ctx, gate, decision, reason)
	s.write(Event{
		Event:    EventGuardrail,
		Gate:     gate,
		Decision: decision,
		Reason:   redact.Redact(reason),
		Metadata: metadata,
	}, corr)
}

// Emit appends a trace event with no gate decision.
func (s *Sink) Emit(ctx context.Context, event string, corr Correlation, metadata map[string]any) {
	s.metrics.traceEvent(ctx, event)
	s.write(Event{Event: event, Metadata: metadata}, corr)
}

// ObserveRoute counts the route a turn was dispatched to.
func (s *Sink) ObserveRoute(ctx context.Context, route string) {
	s.metrics.route(ctx, route)
}

// ObserveHandoff counts control passing from one agent to another.
func (s *Sink) ObserveHandoff(ctx context.Context, from, to string) {
	s.metrics.handoff(ctx, from, to)
}

// ObserveHTTP counts one API request.
func (s *Sink) ObserveHTTP(ctx context.Context, endpoint, status string) {
	s.metrics.httpRequest(ctx, endpoint, status)
}

// ObserveToolCall counts one external call and its latency.
func (s *Sink) ObserveToolCall(ctx context.Context, agent, tool, status string, d time.Duration) {
	s.metrics.toolCall(ctx, agent, tool, status, d)
}

// ObserveSelfRAG counts one grounding-loop attempt decision.
func (s *Sink) ObserveSelfRAG(ctx context.Context, decision, reason string) {
	s.metrics.selfrag(ctx, decision, reason)
}

// ObserveTurn records end-to-end latency of one turn.
func (s *Sink) ObserveTurn(ctx context.Context, d time.Duration) {
	s.metrics.turn(ctx, d)
}

// MetricsHandler serves the current metrics for a Prometheus scrape.
func (s *Sink) MetricsHandler() http.Handler {
	return s.metrics.handler()
}

// Health reports degraded once any write has failed.
func (s *Sink) Health() Health {
	h := Health{Healthy: true, WriteFailures: s.failures.Load()}
	if h.WriteFailures > 0 {
		h.Healthy = false
		if msg, ok := s.lastErr.Load().(string); ok {
			h.LastError = msg
		}
	}
	return h
}

// Close releases the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *Sink) write(e Event, corr Correlation) {
	if s.w == nil {
		return
	}
	e.Timestamp = s.now().UTC()
	e.TraceID = corr.TraceID
	e.SessionID = corr.SessionID
	e.TurnID = corr.TurnID
	e.Metadata = redact.Metadata(e.Metadata)

	data, err := json.Marshal(e)
	if err != nil {
		s.fail(context.Background(), fmt.Errorf("marshal %s: %w", e.Event, err))
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	_, err = s.w.Write(data)
	s.mu.Unlock()
	if err != nil {
		s.fail(context.Background(), err)
	}
}

func (s *Sink) fail(ctx context.Context, err error) {
	msg := redact.Redact(err.Error())
	s.failures.Add(1)
	s.lastErr.Store(msg)
	s.metrics.writeFailure(ctx)
	s.logger.Warn("audit write failed", zap.String("error", msg))
}
