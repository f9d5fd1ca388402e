package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	v, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "direct", v.FallbackRoute)
	assert.True(t, v.HasRoute("rag_agent"))
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)
	assert.Len(t, v.Routes, 8)
}

func TestLoad_NormalizesTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	data := `
version: "1"
routes: [" Monitor ", "rag_agent", "monitor"]
fallback_route: Direct
modes:
  Block: ["BLOCKING"]
  off: []
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	v, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"monitor", "rag_agent", "direct"}, v.Routes)
	assert.Equal(t, "direct", v.FallbackRoute)

	aliases := v.ModeAliases()
	assert.Equal(t, "block", aliases["blocking"])
	assert.Equal(t, "block", aliases["block"])
	assert.Equal(t, "off", aliases["off"])
}

func TestLoad_RejectsMultiTokenRoute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes: [\"monitor and config\"]\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsEmptyRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultVocabulary_ModeAliases(t *testing.T) {
	aliases := DefaultVocabulary().ModeAliases()
	assert.Equal(t, "detect", aliases["default"])
	assert.Equal(t, "off", aliases["disable"])
	_, ok := aliases["drop table"]
	assert.False(t, ok)
}
