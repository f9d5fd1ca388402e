// Package selfrag runs the bounded retrieve, draft, critique and decide
// loop. The critic's verdict is advisory: an answer is only final when its
// citations also pass a check done in code.
package selfrag

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mofangju/security-agent/internal/audit"
	"github.com/mofangju/security-agent/internal/guard"
)

// GateName is the audit gate for loop decisions.
const GateName = "selfrag"

// Decision reasons set by the loop itself.
const (
	ReasonRetrieveError      = "retrieve_error"
	ReasonDraftError         = "draft_error"
	ReasonCritiqueError      = "critique_error"
	ReasonEmptyEvidence      = "empty_evidence"
	ReasonExhaustedAttempts  = "exhausted_attempts"
	ReasonGrounded           = "grounded"
	citationOverridePrefix   = "citation_override:"
	maxClarifyQuestionLength = 300
)

const (
	msgClarifyNoEvidence = "I couldn't find grounded evidence in the knowledge base for that question. " +
		"Could you narrow it down (feature, setting or error message) or upload the relevant documents?"
	msgClarifyDefault = "Could you narrow the question down so I can answer it from the documentation?"
	msgCannotVerify   = "I could not produce a verifiable grounded answer from the available documents. " +
		"Please check the SafeLine documentation directly or escalate to an operator."
)

// Options bounds the loop. Zero values take the defaults.
type Options struct {
	MaxAttempts     int
	MinCitations    int
	InitialLimit    int
	WidenStep       int
	RetrieveTimeout time.Duration
	DraftTimeout    time.Duration
	CritiqueTimeout time.Duration
	Audit           *audit.Sink
	Logger          *zap.Logger
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 2
	}
	if o.MinCitations < 0 {
		o.MinCitations = 0
	}
	if o.InitialLimit <= 0 {
		o.InitialLimit = 5
	}
	if o.WidenStep < 0 {
		o.WidenStep = 0
	}
	if o.RetrieveTimeout <= 0 {
		o.RetrieveTimeout = 10 * time.Second
	}
	if o.DraftTimeout <= 0 {
		o.DraftTimeout = 60 * time.Second
	}
	if o.CritiqueTimeout <= 0 {
		o.CritiqueTimeout = 30 * time.Second
	}
	if o.Audit == nil {
		o.Audit = audit.Nop()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Loop holds the collaborators for grounded answering.
type Loop struct {
	retriever Retriever
	drafter   Generator
	critic    Generator
	opts      Options
}

// New builds a Loop. The critic may be the same Generator as the drafter;
// it is always called with a separate prompt.
func New(retriever Retriever, drafter, critic Generator, opts Options) *Loop {
	opts.defaults()
	if critic == nil {
		critic = drafter
	}
	opts.Logger = opts.Logger.Named("selfrag")
	return &Loop{retriever: retriever, drafter: drafter, critic: critic, opts: opts}
}

// Run answers query. It always returns a terminal Answer; failures of the
// collaborators show up as RETRY attempts in the trace.
func (l *Loop) Run(ctx context.Context, corr audit.Correlation, query string, scope Scope) Answer {
	var trace []Attempt

	for n := 1; n <= l.opts.MaxAttempts; n++ {
		att := Attempt{Number: n, Limit: l.opts.InitialLimit + (n-1)*l.opts.WidenStep}

		evidence, err := l.retrieve(ctx, query, att.Limit, scope)
		if err != nil {
			trace = l.settle(ctx, corr, trace, att, guard.VerdictRetry, ReasonRetrieveError, err)
			continue
		}
		att.EvidenceCount = len(evidence)

		if len(evidence) == 0 {
			if n == 1 {
				trace = l.settle(ctx, corr, trace, att, guard.VerdictClarify, ReasonEmptyEvidence, nil)
				return Answer{Text: msgClarifyNoEvidence, Decision: guard.VerdictClarify, Reason: ReasonEmptyEvidence, Trace: trace}
			}
			trace = l.settle(ctx, corr, trace, att, guard.VerdictRetry, CheckNoEvidence, nil)
			continue
		}

		block := FormatEvidence(evidence)
		draft, err := l.generate(ctx, l.drafter, l.opts.DraftTimeout, draftPrompt(query, block))
		if err != nil {
			trace = l.settle(ctx, corr, trace, att, guard.VerdictRetry, ReasonDraftError, err)
			continue
		}

		att.Citations = ExtractCitations(draft)
		citationsOK, check := CheckCitations(att.Citations, len(evidence), l.opts.MinCitations)
		att.CitationCheck = check

		rawVerdict, err := l.generate(ctx, l.critic, l.opts.CritiqueTimeout, critiquePrompt(query, block, draft))
		if err != nil {
			trace = l.settle(ctx, corr, trace, att, guard.VerdictRetry, ReasonCritiqueError, err)
			continue
		}
		verdict, why, recognized := guard.ParseDecision(rawVerdict)
		att.CritiqueVerdict = verdict
		att.CritiqueReason = why
		if !recognized {
			att.CritiqueVerdict = ""
		}

		switch verdict {
		case guard.VerdictFinal:
			if !citationsOK {
				trace = l.settle(ctx, corr, trace, att, guard.VerdictRetry, citationOverridePrefix+check, nil)
				continue
			}
			trace = l.settle(ctx, corr, trace, att, guard.VerdictFinal, ReasonGrounded, nil)
			text := strings.TrimSpace(draft)
			if footer := sourcesFooter(evidence, att.Citations); footer != "" {
				text += "\n\n" + footer
			}
			return Answer{
				Text:      text,
				Citations: att.Citations,
				Decision:  guard.VerdictFinal,
				Reason:    ReasonGrounded,
				Evidence:  evidence,
				Trace:     trace,
			}
		case guard.VerdictClarify:
			trace = l.settle(ctx, corr, trace, att, guard.VerdictClarify, "critic_clarify", nil)
			return Answer{Text: clarifyText(why), Decision: guard.VerdictClarify, Reason: "critic_clarify", Evidence: evidence, Trace: trace}
		case guard.VerdictEscalate:
			trace = l.settle(ctx, corr, trace, att, guard.VerdictEscalate, "critic_escalate", nil)
			return Answer{Text: msgCannotVerify, Decision: guard.VerdictEscalate, Reason: "critic_escalate", Evidence: evidence, Trace: trace}
		default:
			reason := "critic_retry"
			if !recognized {
				reason = why
			}
			trace = l.settle(ctx, corr, trace, att, guard.VerdictRetry, reason, nil)
		}
	}

	l.opts.Audit.Record(ctx, GateName, string(guard.VerdictEscalate), ReasonExhaustedAttempts, corr, map[string]any{
		"attempts": len(trace),
	})
	l.opts.Audit.ObserveSelfRAG(ctx, string(guard.VerdictEscalate), ReasonExhaustedAttempts)
	return Answer{Text: msgCannotVerify, Decision: guard.VerdictEscalate, Reason: ReasonExhaustedAttempts, Trace: trace}
}

// settle fixes an attempt's decision, audits it and appends it to trace.
func (l *Loop) settle(ctx context.Context, corr audit.Correlation, trace []Attempt, att Attempt, d guard.Verdict, reason string, cause error) []Attempt {
	att.Decision = d
	att.Reason = reason

	md := map[string]any{
		"attempt":        att.Number,
		"limit":          att.Limit,
		"evidence_count": att.EvidenceCount,
		"citations":      att.Citations,
	}
	if att.CitationCheck != "" {
		md["citation_check"] = att.CitationCheck
	}
	if att.CritiqueVerdict != "" {
		md["critique_verdict"] = string(att.CritiqueVerdict)
	}
	if cause != nil {
		md["error"] = cause.Error()
		l.opts.Logger.Warn("grounding attempt failed",
			zap.Int("attempt", att.Number), zap.String("reason", reason), zap.Error(cause))
	}
	if att.CritiqueReason != "" {
		md["critique_reason"] = att.CritiqueReason
	}
	l.opts.Audit.Record(ctx, GateName, string(d), reason, corr, md)
	l.opts.Audit.ObserveSelfRAG(ctx, string(d), reason)
	return append(trace, att)
}

func (l *Loop) retrieve(ctx context.Context, query string, limit int, scope Scope) ([]EvidenceChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.RetrieveTimeout)
	defer cancel()
	evidence, err := l.retriever.Search(ctx, query, limit, scope)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(evidence) > limit {
		evidence = evidence[:limit]
	}
	// indices are positions in this call, whatever the retriever returned
	out := make([]EvidenceChunk, len(evidence))
	for i, e := range evidence {
		e.Index = i
		out[i] = e
	}
	return out, nil
}

func (l *Loop) generate(ctx context.Context, g Generator, timeout time.Duration, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return g.Generate(ctx, prompt)
}

func clarifyText(question string) string {
	q := strings.TrimSpace(question)
	if q == "" {
		return msgClarifyDefault
	}
	if utf8.RuneCountInString(q) > maxClarifyQuestionLength {
		q = string([]rune(q)[:maxClarifyQuestionLength])
	}
	return "I need a bit more detail to answer from the documentation: " + q
}
