// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mofangju/security-agent/internal/assistant"
	"github.com/mofangju/security-agent/internal/audit"
	"github.com/mofangju/security-agent/internal/redact"
	"github.com/mofangju/security-agent/internal/selfrag"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Turner runs one conversational turn.
type Turner interface {
	Turn(ctx context.Context, req assistant.TurnRequest) (assistant.Reply, error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Handler struct {
	Assistant Turner
	Audit     *audit.Sink
	Logger    *zap.Logger
	Ready     map[string]ReadyCheck
}

func NewRouter(h *Handler) http.Handler {
	if h.Audit == nil {
		h.Audit = audit.Nop()
	}
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /metrics", h.Metrics)
	mux.HandleFunc("POST /v1/chat", h.Chat)
	return h.observe(mux)
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Scope     *selfrag.Scope `json:"scope,omitempty"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "")
		return
	}
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		writeError(w, http.StatusBadRequest, "invalid_body", "")
		return
	}
	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message_required", "")
		return
	}

	turn := assistant.TurnRequest{SessionID: req.SessionID, Message: req.Message}
	if req.Scope != nil {
		turn.Scope = *req.Scope
	}
	reply, err := h.Assistant.Turn(r.Context(), turn)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "message_required", "")
			return
		}
		h.Logger.Error("chat turn failed", zap.String("session", req.SessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "chat_failed", redact.Redact(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every readiness check; the first failure makes the instance
// not ready.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, check := range h.Ready {
		if err := check(ctx); err != nil {
			h.Logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"check":  name,
				"error":  redact.Redact(err.Error()),
			})
			return
		}
	}
	if health := h.Audit.Health(); !health.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"check":  "audit",
			"audit":  health,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.Audit.MetricsHandler().ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe counts every request by endpoint and status. Unknown paths share
// one label so scanners cannot grow the series set.
func (h *Handler) observe(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if _, pattern := next.Handler(r); pattern == "" {
			endpoint = "other"
		}
		h.Audit.ObserveHTTP(r.Context(), endpoint, strconv.Itoa(rec.status))
		h.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("endpoint", endpoint),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	body := map[string]string{"error": code}
	if detail != "" {
		body["detail"] = detail
	}
	writeJSON(w, status, body)
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("api shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// NewServer builds an http.Server with the timeouts used in production.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
