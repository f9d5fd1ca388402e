package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mofangju/security-agent/internal/assistant"
)

type recordedTurn struct {
	session string
	message string
}

func fakeTurns(replies map[string]assistant.Reply) (turnFunc, *[]recordedTurn) {
	var seen []recordedTurn
	return func(_ context.Context, session, message string) (assistant.Reply, error) {
		seen = append(seen, recordedTurn{session, message})
		if r, ok := replies[message]; ok {
			return r, nil
		}
		return assistant.Reply{}, errors.New("no scripted reply")
	}, &seen
}

func TestRunChatPiped(t *testing.T) {
	turn, seen := fakeTurns(map[string]assistant.Reply{
		"hi":             {Route: "direct", Text: "Hello, I'm Lumina."},
		"block mode now": {Route: "config_manager", Text: "Please confirm ...", Pending: true},
	})
	in := strings.NewReader("hi\n\n  block mode now  \nexit\nnever sent\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), in, &out, false, "sess-1", turn))

	assert.Equal(t, "Hello, I'm Lumina.\nPlease confirm ...\n", out.String())
	require.Len(t, *seen, 2)
	assert.Equal(t, recordedTurn{"sess-1", "block mode now"}, (*seen)[1])
}

func TestRunChatInteractive(t *testing.T) {
	turn, _ := fakeTurns(map[string]assistant.Reply{
		"switch to block mode": {Route: "config_manager", Text: "Please confirm", Pending: true},
	})
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), strings.NewReader("switch to block mode\nbogus\n"), &out, true, "s", turn))

	text := out.String()
	assert.Contains(t, text, "Session s.")
	assert.Contains(t, text, "lumina [config_manager]> Please confirm")
	assert.Contains(t, text, "awaiting confirmation")
	assert.Contains(t, text, "error: no scripted reply")
}

func TestRunChatStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	turn := func(ctx context.Context, _, _ string) (assistant.Reply, error) {
		return assistant.Reply{}, ctx.Err()
	}
	var out bytes.Buffer
	require.NoError(t, runChat(ctx, strings.NewReader("hello\nagain\n"), &out, false, "s", turn))
	assert.Empty(t, out.String())
}
