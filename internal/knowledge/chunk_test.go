package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMarkdownSections(t *testing.T) {
	chunks := ChunkMarkdown(modesDoc, 512, 50)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Protection modes", chunks[0].Section)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "# Protection modes\n\n"))
	assert.Equal(t, "Whitelist rules", chunks[1].Section)
}

func TestChunkMarkdownPreamble(t *testing.T) {
	chunks := ChunkMarkdown("intro text\n\n# Title\n\nbody", 512, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, "", chunks[0].Section)
	assert.Equal(t, "intro text", chunks[0].Text)
}

func TestChunkMarkdownSplitsLongSections(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("This sentence talks about SafeLine rules. ")
	}
	chunks := ChunkMarkdown("# Long\n\n"+b.String(), 200, 20)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		body := strings.TrimPrefix(c.Text, "# Long\n\n")
		assert.LessOrEqual(t, len(body), 200)
		assert.Equal(t, "Long", c.Section)
	}
}

func TestSplitTextTerminatesOnMultibyte(t *testing.T) {
	text := strings.Repeat("\u754c", 50)
	pieces := splitText(text, 2, 1)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.True(t, utf8.ValidString(p))
	}
}
