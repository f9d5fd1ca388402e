package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/mofangju/security-agent/internal/assistant"
	"github.com/mofangju/security-agent/internal/audit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTurner struct {
	mu   sync.Mutex
	reqs []assistant.TurnRequest
	err  error
}

func (f *fakeTurner) Turn(_ context.Context, req assistant.TurnRequest) (assistant.Reply, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return assistant.Reply{}, f.err
	}
	sid := req.SessionID
	if sid == "" {
		sid = "generated"
	}
	return assistant.Reply{
		SessionID:    sid,
		TraceID:      "trace-1",
		TurnID:       "1",
		Route:        "direct",
		Text:         "hello from Lumina",
		MessageCount: 2,
	}, nil
}

func newTestRouter(t *testing.T, turner Turner, ready map[string]ReadyCheck) (http.Handler, *audit.Sink) {
	t.Helper()
	sink, err := audit.NewWithWriter(nil, audit.Options{})
	require.NoError(t, err)
	return NewRouter(&Handler{Assistant: turner, Audit: sink, Ready: ready}), sink
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, &fakeTurner{}, nil)
	rec := do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestReadyz(t *testing.T) {
	h, _ := newTestRouter(t, &fakeTurner{}, map[string]ReadyCheck{
		"knowledge": func(context.Context) error { return nil },
	})
	rec := do(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])

	h, _ = newTestRouter(t, &fakeTurner{}, map[string]ReadyCheck{
		"ledger": func(context.Context) error { return errors.New("redis unreachable") },
	})
	rec = do(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, "ledger", body["check"])
}

func TestChat(t *testing.T) {
	turner := &fakeTurner{}
	h, _ := newTestRouter(t, turner, nil)

	rec := do(h, http.MethodPost, "/v1/chat", `{"message":"hi","session_id":"abc","scope":{"source":"modes.md"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, "hello from Lumina", body["reply"])
	assert.EqualValues(t, 2, body["message_count"])

	require.Len(t, turner.reqs, 1)
	assert.Equal(t, "modes.md", turner.reqs[0].Scope.Source)
}

func TestChatErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"not json", `{nope`, http.StatusBadRequest, "invalid_json"},
		{"empty body", ``, http.StatusBadRequest, "invalid_json"},
		{"array", `["hi"]`, http.StatusBadRequest, "invalid_body"},
		{"wrong type", `{"message": 5}`, http.StatusBadRequest, "invalid_body"},
		{"blank message", `{"message": "   "}`, http.StatusBadRequest, "message_required"},
		{"missing message", `{"session_id": "abc"}`, http.StatusBadRequest, "message_required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			turner := &fakeTurner{}
			h, _ := newTestRouter(t, turner, nil)
			rec := do(h, http.MethodPost, "/v1/chat", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["error"])
			assert.Empty(t, turner.reqs)
		})
	}
}

func TestChatFailure(t *testing.T) {
	h, _ := newTestRouter(t, &fakeTurner{err: errors.New("model exploded")}, nil)
	rec := do(h, http.MethodPost, "/v1/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "chat_failed", body["error"])
	assert.Equal(t, "model exploded", body["detail"])
}

func TestMetrics(t *testing.T) {
	h, _ := newTestRouter(t, &fakeTurner{}, nil)
	do(h, http.MethodPost, "/v1/chat", `{"message":"hi"}`)
	do(h, http.MethodGet, "/no/such/path", "")

	rec := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	text := rec.Body.String()
	assert.Contains(t, text, `http_requests_total{endpoint="/v1/chat",status="200"} 1`)
	assert.Contains(t, text, `http_requests_total{endpoint="other",status="404"} 1`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h, _ := newTestRouter(t, &fakeTurner{}, nil)
	srv := NewServer(addr, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}
