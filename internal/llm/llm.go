// Package llm adapts chat-completion providers to the small interface the
// assistant needs.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mofangju/security-agent/internal/config"
)

// Roles used in Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client generates text. Implementations must honor ctx cancellation.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, system string, history []Message) (string, error)
	Name() string
}

// New builds the client selected by cfg.Provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.OpenAIBaseURL,
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			RequireKey:  true,
		}, logger)
	case "vllm":
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.VLLMBaseURL,
			APIKey:      "EMPTY",
			Model:       cfg.VLLMModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	case "google":
		return NewGoogle(context.Background(), GoogleConfig{
			APIKey:      cfg.GoogleAPIKey,
			Model:       cfg.GoogleModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Func adapts a plain function to Client. Tests and offline modes use it.
type Func func(ctx context.Context, system string, history []Message) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, "", []Message{{Role: RoleUser, Content: prompt}})
}

func (f Func) Chat(ctx context.Context, system string, history []Message) (string, error) {
	return f(ctx, system, history)
}

func (f Func) Name() string { return "func" }
