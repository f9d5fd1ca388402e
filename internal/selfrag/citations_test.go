package selfrag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		text string
		want []int
	}{
		{"no markers", []int{}},
		{"a [0] b [2] c [0]", []int{0, 2}},
		{"[10][3]", []int{3, 10}},
		{"[x] [ 1 ] [-1]", []int{}},
		{"huge [99999999999999999999999]", []int{-1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractCitations(tt.text), tt.text)
	}
}

func TestCheckCitations(t *testing.T) {
	tests := []struct {
		name      string
		citations []int
		n, min    int
		ok        bool
		reason    string
	}{
		{"ok", []int{0, 1}, 2, 1, true, CheckOK},
		{"no evidence", []int{0}, 0, 1, false, CheckNoEvidence},
		{"out of range", []int{0, 2}, 2, 1, false, "citation_out_of_range:2"},
		{"negative", []int{-1}, 2, 1, false, "citation_out_of_range:-1"},
		{"missing", nil, 3, 1, false, CheckMissingCitations},
		{"zero minimum", nil, 3, 0, true, CheckOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := CheckCitations(tt.citations, tt.n, tt.min)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestSourcesFooterListsOnlyCited(t *testing.T) {
	ev := []EvidenceChunk{
		{Index: 0, Source: "a.md", Section: "Intro"},
		{Index: 1, Source: "b.md"},
	}
	assert.Equal(t, "Sources:\n[1] b.md", sourcesFooter(ev, []int{1}))
	assert.Equal(t, "", sourcesFooter(ev, nil))
}
