// Package safeline is a small REST client for the SafeLine WAF open API.
package safeline

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TokenHeader carries the API token on every request.
const TokenHeader = "X-SLCE-API-TOKEN"

const maxResponseBytes = 4 << 20

// Mode values accepted by the global mode endpoint.
var apiModes = map[string]string{
	"block":  "block",
	"detect": "default",
	"off":    "disable",
}

// semanticCategories are the per-detector switches the global mode call sets.
var semanticCategories = []string{
	"m_sqli", "m_xss", "m_cmd_injection", "m_file_include",
	"m_file_upload", "m_ssrf", "m_ssti", "m_csrf",
	"m_java", "m_java_unserialize", "m_php_code_injection",
	"m_php_unserialize", "m_asp_code_injection", "m_http",
	"m_scanner", "m_response", "m_rule",
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	APIToken      string
	Timeout       time.Duration
	Retries       int
	VerifyTLS     bool
	CABundle      string
	RatePerSecond float64
	Logger        *zap.Logger
	// HTTPClient overrides the transport built from the TLS settings.
	HTTPClient *http.Client
}

// RetryPolicy controls retries of transient failures.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Retryable      map[int]bool
}

func defaultRetryPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:     retries,
		InitialBackoff: 300 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Retryable: map[int]bool{
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff << attempt
	if d <= 0 || d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	// up to 20% jitter
	return d + time.Duration(rand.Int64N(int64(d)/5+1))
}

// StatusError is a non-2xx answer from SafeLine.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("safeline returned HTTP %d", e.Code)
}

// Client talks to one SafeLine instance.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
	logger  *zap.Logger
}

// New builds a Client. The CA bundle is only read when TLS verification is on.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid safeline url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		tlsCfg, err := tlsConfig(cfg.VerifyTLS, cfg.CABundle)
		if err != nil {
			return nil, err
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsCfg
		hc = &http.Client{Transport: tr, Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		base:    base,
		token:   cfg.APIToken,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		retry:   defaultRetryPolicy(cfg.Retries),
		logger:  logger.Named("safeline"),
	}, nil
}

func tlsConfig(verify bool, caBundle string) (*tls.Config, error) {
	if !verify {
		// local SafeLine installs ship a self-signed certificate
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caBundle = strings.TrimSpace(caBundle); caBundle != "" {
		pem, err := os.ReadFile(caBundle)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %s holds no certificates", caBundle)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// SetProtectionMode switches every semantic detector to mode
// (block, detect or off). It returns the raw response body.
func (c *Client) SetProtectionMode(ctx context.Context, mode string) ([]byte, error) {
	apiMode, ok := apiModes[mode]
	if !ok {
		return nil, fmt.Errorf("unsupported protection mode %q", mode)
	}
	semantics := make(map[string]string, len(semanticCategories))
	for _, cat := range semanticCategories {
		semantics[cat] = apiMode
	}
	return c.do(ctx, http.MethodPut, "/api/open/global/mode", nil, map[string]any{"semantics": semantics})
}

// GetProtectionMode returns the current per-detector modes.
func (c *Client) GetProtectionMode(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/open/global/mode", nil, nil)
}

// AddIPGroupEntry adds ip to the blacklist (deny) or whitelist (allow).
func (c *Client) AddIPGroupEntry(ctx context.Context, list, ip, comment string) ([]byte, error) {
	var action string
	switch list {
	case "blacklist":
		action = "deny"
	case "whitelist":
		action = "allow"
	default:
		return nil, fmt.Errorf("unsupported ip list %q", list)
	}
	return c.do(ctx, http.MethodPost, "/api/open/ipgroup", nil, map[string]any{
		"ips":     []string{ip},
		"action":  action,
		"comment": comment,
	})
}

// ListIPGroups returns up to top IP group entries.
func (c *Client) ListIPGroups(ctx context.Context, top int) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/open/ipgroup", url.Values{"top": {strconv.Itoa(top)}}, nil)
}

// SystemInfo returns version and host information.
func (c *Client) SystemInfo(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/open/system", nil, nil)
}

// AttackEvents returns one page of attack events.
func (c *Client) AttackEvents(ctx context.Context, page, pageSize int) ([]byte, error) {
	q := url.Values{"page": {strconv.Itoa(page)}, "page_size": {strconv.Itoa(pageSize)}}
	return c.do(ctx, http.MethodGet, "/api/open/events", q, nil)
}

// QPS returns the real-time request rate series.
func (c *Client) QPS(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/stat/qps", nil, nil)
}

// TrafficStats combines QPS and the attack total into one document shaped
// for ParseQPS. Partial failures are reported inline.
func (c *Client) TrafficStats(ctx context.Context) ([]byte, error) {
	stats := map[string]any{}
	if raw, err := c.QPS(ctx); err != nil {
		stats["qps"] = map[string]string{"error": err.Error()}
	} else {
		stats["qps"] = json.RawMessage(raw)
	}
	if raw, err := c.AttackEvents(ctx, 1, 1); err != nil {
		stats["total_attacks"] = map[string]string{"error": err.Error()}
	} else {
		stats["total_attacks"] = ParseEvents(raw).Total
	}
	return json.Marshal(stats)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retry.backoff(attempt - 1)
			c.logger.Debug("retrying safeline request",
				zap.String("method", method), zap.String("path", path),
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, retry, err := c.once(ctx, method, u.String(), payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte) ([]byte, bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.retry.Retryable[resp.StatusCode], &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
