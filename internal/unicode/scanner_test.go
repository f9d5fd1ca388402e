package unicode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_CleanASCII(t *testing.T) {
	rep := Inspect("Blocked by Security agent", SingleLine)
	assert.True(t, rep.Clean)
	assert.Empty(t, rep.Findings)
	assert.Equal(t, "Blocked by Security agent", rep.Sanitized)
}

func TestInspect_Categories(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		category string
		want     string
	}{
		{"zero width space", "ban\u200Bned", "zero-width", "banned"},
		{"bom", "\uFEFFnote", "zero-width", "note"},
		{"rtl override", "abc\u202Edef", "bidi-override", "abcdef"},
		{"isolate", "a\u2067b", "bidi-override", "ab"},
		{"tag char", "hi\U000E0041", "tag-char", "hi"},
		{"nul", "a\x00b", "control-char", "ab"},
		{"c1 control", "a\u0085b", "control-char", "ab"},
		{"invalid utf8", "a\xffb", "invalid-utf8", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := Inspect(tt.input, SingleLine)
			require.False(t, rep.Clean)
			require.Len(t, rep.Findings, 1)
			assert.Equal(t, tt.category, rep.Findings[0].Category)
			assert.Equal(t, tt.want, rep.Sanitized)
		})
	}
}

func TestInspect_ModeControlsLayoutCharacters(t *testing.T) {
	in := "line1\n\tline2\r\n"

	assert.Equal(t, in, Strip(in, MultiLine))
	assert.Equal(t, "line1line2", Strip(in, SingleLine))
}

func TestInspect_ReportsOffsets(t *testing.T) {
	rep := Inspect("ab\u200Bc", SingleLine)
	require.Len(t, rep.Findings, 1)
	assert.Equal(t, 2, rep.Findings[0].Offset)
	assert.Equal(t, "U+200B", rep.Findings[0].Codepoint)
}

func TestInspect_KeepsNonLatinText(t *testing.T) {
	assert.Equal(t, "日本語 Ελληνικά", Strip("日本語 Ελληνικά", SingleLine))
}
