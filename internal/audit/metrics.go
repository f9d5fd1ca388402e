package audit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const DefaultNamespace = "security_agent"

var (
	toolLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0}
	turnLatencyBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0}
)

// instrument names; the exporter prefixes the namespace
const (
	mRoute         = "agent_route_total"
	mHandoff       = "agent_handoff_total"
	mHTTPRequests  = "http_requests_total"
	mToolCalls     = "agent_tool_calls_total"
	mGuardrail     = "agent_guardrail_total"
	mSelfRAG       = "agent_selfrag_decision_total"
	mTraceEvents   = "agent_trace_events_total"
	mWriteFailures = "agent_audit_write_failures_total"
	mToolLatency   = "agent_tool_latency_seconds"
	mTurnLatency   = "agent_turn_latency_seconds"
)

var help = map[string]string{
	mRoute:         "Turns dispatched per route.",
	mHandoff:       "Handoffs between agents.",
	mHTTPRequests:  "API requests by endpoint and status.",
	mToolCalls:     "External tool calls by agent, tool and status.",
	mGuardrail:     "Guardrail decisions by gate, decision and reason.",
	mSelfRAG:       "Grounding loop attempt decisions.",
	mTraceEvents:   "Trace events emitted by name.",
	mWriteFailures: "Audit records that could not be persisted.",
	mToolLatency:   "External tool call latency.",
	mTurnLatency:   "End-to-end turn latency.",
}

// metrics holds OpenTelemetry instruments read by a Prometheus exporter
// registered on a private registry.
type metrics struct {
	registry *prometheus.Registry

	routeCounter     metric.Int64Counter
	handoffCounter   metric.Int64Counter
	httpCounter      metric.Int64Counter
	toolCounter      metric.Int64Counter
	guardrailCounter metric.Int64Counter
	selfragCounter   metric.Int64Counter
	traceCounter     metric.Int64Counter
	failureCounter   metric.Int64Counter
	toolHist         metric.Float64Histogram
	turnHist         metric.Float64Histogram
}

func newMetrics(namespace string) (*metrics, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(namespace),
		otelprom.WithoutScopeInfo(),
		otelprom.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/mofangju/security-agent/internal/audit")

	m := &metrics{registry: registry}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.routeCounter, mRoute},
		{&m.handoffCounter, mHandoff},
		{&m.httpCounter, mHTTPRequests},
		{&m.toolCounter, mToolCalls},
		{&m.guardrailCounter, mGuardrail},
		{&m.selfragCounter, mSelfRAG},
		{&m.traceCounter, mTraceEvents},
		{&m.failureCounter, mWriteFailures},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(helpFor(c.name)))
		if err != nil {
			return nil, err
		}
	}
	m.toolHist, err = meter.Float64Histogram(mToolLatency,
		metric.WithDescription(helpFor(mToolLatency)),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(toolLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}
	m.turnHist, err = meter.Float64Histogram(mTurnLatency,
		metric.WithDescription(helpFor(mTurnLatency)),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

// handler serves the registry in the Prometheus exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) route(ctx context.Context, route string) {
	m.routeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("selected_agent", route)))
}

func (m *metrics) handoff(ctx context.Context, from, to string) {
	m.handoffCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from_agent", from),
		attribute.String("to_agent", to),
	))
}

func (m *metrics) httpRequest(ctx context.Context, endpoint, status string) {
	m.httpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func (m *metrics) toolCall(ctx context.Context, agent, tool, status string, d time.Duration) {
	m.toolCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.toolHist.Record(ctx, seconds(d), metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("tool", tool),
	))
}

func (m *metrics) guardrail(ctx context.Context, gate, decision, reason string) {
	m.guardrailCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("decision", decision),
		attribute.String("reason", reason),
	))
}

func (m *metrics) selfrag(ctx context.Context, decision, reason string) {
	m.selfragCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("reason", reason),
	))
}

func (m *metrics) traceEvent(ctx context.Context, event string) {
	m.traceCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *metrics) writeFailure(ctx context.Context) {
	m.failureCounter.Add(ctx, 1)
}

func (m *metrics) turn(ctx context.Context, d time.Duration) {
	m.turnHist.Record(ctx, seconds(d))
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
