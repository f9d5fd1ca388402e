package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GoogleConfig configures the Gemini provider.
type GoogleConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Google calls Gemini through the genai SDK.
type Google struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// NewGoogle creates the Gemini client.
func NewGoogle(ctx context.Context, cfg GoogleConfig, logger *zap.Logger) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Google API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Google{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		logger:      logger.Named("llm.google"),
	}, nil
}

func (g *Google) Name() string { return "google:" + g.model }

func (g *Google) Generate(ctx context.Context, prompt string) (string, error) {
	return g.Chat(ctx, "", []Message{{Role: RoleUser, Content: prompt}})
}

func (g *Google) Chat(ctx context.Context, system string, history []Message) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genaiContents(history), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("GenAI returned empty content")
	}
	g.logger.Debug("LLM generation complete", zap.String("model", g.model), zap.Duration("duration", time.Since(start)))
	return text, nil
}

// genaiContents maps history onto Gemini roles. Anything that is not an
// assistant turn is sent as user content.
func genaiContents(history []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}
