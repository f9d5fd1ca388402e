package selfrag

import (
	"context"

	"github.com/mofangju/security-agent/internal/guard"
)

// EvidenceChunk is one retrieved passage. Index is its position in the
// retrieval call that produced it and the only valid citation target.
type EvidenceChunk struct {
	Index   int     `json:"index"`
	Source  string  `json:"source"`
	Section string  `json:"section"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// Scope narrows retrieval to one document source or upload.
type Scope struct {
	Source   string `json:"source,omitempty"`
	UploadID string `json:"upload_id,omitempty"`
}

// Retriever returns ordered evidence for a query. It must not have side effects.
type Retriever interface {
	Search(ctx context.Context, query string, limit int, scope Scope) ([]EvidenceChunk, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Attempt is one pass of retrieve, draft, critique and decide.
type Attempt struct {
	Number          int           `json:"number"`
	Limit           int           `json:"limit"`
	EvidenceCount   int           `json:"evidence_count"`
	Citations       []int         `json:"citations,omitempty"`
	CitationCheck   string        `json:"citation_check,omitempty"`
	CritiqueVerdict guard.Verdict `json:"critique_verdict,omitempty"`
	CritiqueReason  string        `json:"critique_reason,omitempty"`
	Decision        guard.Verdict `json:"decision"`
	Reason          string        `json:"reason"`
}

// Answer is the loop's terminal result.
type Answer struct {
	Text      string          `json:"text"`
	Citations []int           `json:"citations,omitempty"`
	Decision  guard.Verdict   `json:"decision"`
	Reason    string          `json:"reason"`
	Evidence  []EvidenceChunk `json:"evidence,omitempty"`
	Trace     []Attempt       `json:"trace"`
}

// Grounded reports whether the answer passed the citation contract.
func (a Answer) Grounded() bool { return a.Decision == guard.VerdictFinal }
