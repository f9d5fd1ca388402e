package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mofangju/security-agent/internal/assistant"
	"github.com/mofangju/security-agent/internal/audit"
	"github.com/mofangju/security-agent/internal/config"
	"github.com/mofangju/security-agent/internal/gate"
	"github.com/mofangju/security-agent/internal/knowledge"
	"github.com/mofangju/security-agent/internal/ledger"
	"github.com/mofangju/security-agent/internal/llm"
	"github.com/mofangju/security-agent/internal/policy"
	"github.com/mofangju/security-agent/internal/safeline"
	"github.com/mofangju/security-agent/internal/selfrag"
	"github.com/mofangju/security-agent/internal/server"
	"github.com/mofangju/security-agent/internal/taxonomy"
	"github.com/mofangju/security-agent/internal/validate"
)

const catalogDir = "catalog"

// runtime owns every long-lived component behind the assistant.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	audit     *audit.Sink
	redis     *ledger.RedisStore
	waf       *safeline.Client
	knowledge *knowledge.Store
	model     llm.Client
	assistant *assistant.Assistant
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}
	return cfg, config.NewLogger(cfg.Logger), nil
}

func newRuntime(cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}
	if err := rt.build(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	logger.Debug("runtime ready",
		zap.String("llm", rt.model.Name()),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.String("safeline", cfg.SafeLine.URL),
		zap.String("knowledge", cfg.RAG.DBPath))
	return rt, nil
}

func (rt *runtime) build() error {
	cfg, logger := rt.cfg, rt.logger
	var err error

	auditPath := ""
	if cfg.Audit.Enabled {
		auditPath = cfg.Audit.Path
	}
	rt.audit, err = audit.New(audit.Options{
		Path:       auditPath,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		Namespace:  cfg.Audit.MetricsNamespace,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open audit sink: %w", err)
	}

	vocab, err := policy.Load(cfg.Guardrails.VocabularyPath)
	if err != nil {
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}
	catalog, err := taxonomy.LoadCatalog(filepath.Join(cfg.ConfigDir, catalogDir))
	if err != nil {
		return fmt.Errorf("failed to load attack catalog: %w", err)
	}

	var store ledger.Store = ledger.NewMemoryStore()
	if cfg.Ledger.Backend == "redis" {
		rt.redis = ledger.NewRedisStore(cfg.Ledger.RedisAddr, cfg.Ledger.RedisPassword, cfg.Ledger.RedisDB)
		store = rt.redis
	}

	rt.waf, err = safeline.New(safeline.Config{
		BaseURL:       cfg.SafeLine.URL,
		APIToken:      cfg.SafeLine.APIToken,
		Timeout:       cfg.SafeLine.Timeout,
		Retries:       cfg.SafeLine.Retries,
		VerifyTLS:     cfg.SafeLine.VerifyTLS,
		CABundle:      cfg.SafeLine.CABundle,
		RatePerSecond: cfg.SafeLine.RatePerSecond,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build safeline client: %w", err)
	}

	rt.knowledge, err = openKnowledge(cfg, logger)
	if err != nil {
		return err
	}

	rt.model, err = llm.New(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to build llm client: %w", err)
	}

	actions := gate.New(gate.Options{
		Ledger: ledger.New(store, ledger.Options{
			TTL:         cfg.Guardrails.ActionTTL,
			NonceLength: cfg.Guardrails.NonceLength,
		}),
		WAF: rt.waf,
		Validator: validate.New(vocab, validate.Options{
			AllowIPv6:     cfg.Guardrails.AllowIPv6,
			CommentMaxLen: cfg.Guardrails.CommentMaxLen,
		}),
		Audit:          rt.audit,
		Logger:         logger,
		ToolTimeout:    cfg.Guardrails.ToolTimeout,
		DefaultComment: cfg.Guardrails.DefaultComment,
	})

	grounding := selfrag.New(rt.knowledge, rt.model, rt.model, selfrag.Options{
		MaxAttempts:     cfg.SelfRAG.MaxAttempts,
		MinCitations:    cfg.SelfRAG.MinCitations,
		InitialLimit:    cfg.SelfRAG.InitialLimit,
		WidenStep:       cfg.SelfRAG.WidenStep,
		RetrieveTimeout: cfg.SelfRAG.RetrieveTimeout,
		DraftTimeout:    cfg.SelfRAG.DraftTimeout,
		CritiqueTimeout: cfg.SelfRAG.CritiqueTimeout,
		Audit:           rt.audit,
		Logger:          logger,
	})

	rt.assistant, err = assistant.New(assistant.Options{
		LLM:           rt.model,
		Gate:          actions,
		Grounding:     grounding,
		WAF:           rt.waf,
		Knowledge:     rt.knowledge,
		Catalog:       catalog,
		Vocabulary:    vocab,
		Sessions:      assistant.NewSessionStore(cfg.API.SessionTTL, cfg.API.MaxSessions, nil),
		Audit:         rt.audit,
		Logger:        logger,
		ToolTimeout:   cfg.Guardrails.ToolTimeout,
		ModelTimeout:  cfg.LLM.Timeout,
		SearchTimeout: cfg.SelfRAG.RetrieveTimeout,
	})
	return err
}

func openKnowledge(cfg *config.Config, logger *zap.Logger) (*knowledge.Store, error) {
	kb, err := knowledge.Open(cfg.RAG.DBPath, knowledge.Options{
		ChunkSize:     cfg.RAG.ChunkSize,
		ChunkOverlap:  cfg.RAG.ChunkOverlap,
		MaxChunkChars: cfg.RAG.MaxChunkChars,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return kb, nil
}

// readyChecks are the dependencies /readyz probes.
func (rt *runtime) readyChecks() map[string]server.ReadyCheck {
	checks := map[string]server.ReadyCheck{
		"knowledge": rt.knowledge.Ping,
	}
	if rt.redis != nil {
		checks["ledger"] = rt.redis.Ping
	}
	return checks
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.knowledge != nil {
		errs = append(errs, rt.knowledge.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.audit != nil {
		errs = append(errs, rt.audit.Close())
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return errors.Join(errs...)
}

// turn runs one message with the command's context.
func (rt *runtime) turn(ctx context.Context, session, message string) (assistant.Reply, error) {
	return rt.assistant.Turn(ctx, assistant.TurnRequest{SessionID: session, Message: message})
}
