package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".security-agent"
	DefaultConfigFile = "config.yaml"
	DefaultLogFile    = "audit.jsonl"
	DefaultDBFile     = "knowledge.db"

	envPrefix = "SECURITY_AGENT"
)

// Config is the full runtime configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	SelfRAG    SelfRAGConfig    `mapstructure:"selfrag"`
	Audit      AuditConfig      `mapstructure:"audit"`
	SafeLine   SafeLineConfig   `mapstructure:"safeline"`
	LLM        LLMConfig        `mapstructure:"llm"`
	RAG        RAGConfig        `mapstructure:"rag"`
	API        APIConfig        `mapstructure:"api"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`

	// ConfigDir is where state files live when no explicit path is set.
	ConfigDir string `mapstructure:"-"`
	// ConfigFile is the file that was read, empty when running on defaults.
	ConfigFile string `mapstructure:"-"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogFile    string `mapstructure:"log_file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// GuardrailsConfig holds the knobs of the confirmation ledger and validators.
type GuardrailsConfig struct {
	ActionTTL      time.Duration `mapstructure:"action_ttl"`
	NonceLength    int           `mapstructure:"nonce_length"`
	CommentMaxLen  int           `mapstructure:"comment_max_len"`
	AllowIPv6      bool          `mapstructure:"allow_ipv6"`
	VocabularyPath string        `mapstructure:"vocabulary_path"`
	ToolTimeout    time.Duration `mapstructure:"tool_timeout"`
	DefaultComment string        `mapstructure:"default_comment"`
}

type SelfRAGConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	MinCitations    int           `mapstructure:"min_citations"`
	InitialLimit    int           `mapstructure:"initial_limit"`
	WidenStep       int           `mapstructure:"widen_step"`
	RetrieveTimeout time.Duration `mapstructure:"retrieve_timeout"`
	DraftTimeout    time.Duration `mapstructure:"draft_timeout"`
	CritiqueTimeout time.Duration `mapstructure:"critique_timeout"`
}

type AuditConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Path             string `mapstructure:"path"`
	MaxSizeMB        int    `mapstructure:"max_size_mb"`
	MaxBackups       int    `mapstructure:"max_backups"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

type SafeLineConfig struct {
	URL           string        `mapstructure:"url"`
	APIToken      string        `mapstructure:"api_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	VerifyTLS     bool          `mapstructure:"verify_tls"`
	CABundle      string        `mapstructure:"ca_bundle"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

type LLMConfig struct {
	Provider      string        `mapstructure:"provider"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIModel   string        `mapstructure:"openai_model"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	GoogleAPIKey  string        `mapstructure:"google_api_key"`
	GoogleModel   string        `mapstructure:"google_model"`
	VLLMBaseURL   string        `mapstructure:"vllm_base_url"`
	VLLMModel     string        `mapstructure:"vllm_model"`
	Temperature   float64       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RAGConfig struct {
	DBPath        string `mapstructure:"db_path"`
	DocsDir       string `mapstructure:"docs_dir"`
	ChunkSize     int    `mapstructure:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap"`
	MaxChunkChars int    `mapstructure:"max_chunk_chars"`
}

type APIConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	MaxSessions int           `mapstructure:"max_sessions"`
}

type LedgerConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// SetDefaults registers a default for every key so env overrides apply
// even when no config file exists.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("guardrails.action_ttl", "300s")
	v.SetDefault("guardrails.nonce_length", 6)
	v.SetDefault("guardrails.comment_max_len", 128)
	v.SetDefault("guardrails.allow_ipv6", false)
	v.SetDefault("guardrails.vocabulary_path", "")
	v.SetDefault("guardrails.tool_timeout", "15s")
	v.SetDefault("guardrails.default_comment", "Blocked by Lumina after operator confirmation")

	v.SetDefault("selfrag.max_attempts", 2)
	v.SetDefault("selfrag.min_citations", 1)
	v.SetDefault("selfrag.initial_limit", 5)
	v.SetDefault("selfrag.widen_step", 5)
	v.SetDefault("selfrag.retrieve_timeout", "10s")
	v.SetDefault("selfrag.draft_timeout", "60s")
	v.SetDefault("selfrag.critique_timeout", "30s")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "")
	v.SetDefault("audit.max_size_mb", 20)
	v.SetDefault("audit.max_backups", 5)
	v.SetDefault("audit.metrics_namespace", "security_agent")

	v.SetDefault("safeline.url", "https://localhost:9443")
	v.SetDefault("safeline.api_token", "")
	v.SetDefault("safeline.timeout", "15s")
	v.SetDefault("safeline.retries", 2)
	v.SetDefault("safeline.verify_tls", false)
	v.SetDefault("safeline.ca_bundle", "")
	v.SetDefault("safeline.rate_per_second", 5.0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.google_api_key", "")
	v.SetDefault("llm.google_model", "gemini-2.0-flash")
	v.SetDefault("llm.vllm_base_url", "http://localhost:8000/v1")
	v.SetDefault("llm.vllm_model", "meta-llama/Llama-3.1-8B-Instruct")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("rag.db_path", "")
	v.SetDefault("rag.docs_dir", "data/docs")
	v.SetDefault("rag.chunk_size", 512)
	v.SetDefault("rag.chunk_overlap", 50)
	v.SetDefault("rag.max_chunk_chars", 1500)

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.session_ttl", "1h")
	v.SetDefault("api.max_sessions", 1000)

	v.SetDefault("ledger.backend", "memory")
	v.SetDefault("ledger.redis_addr", "localhost:6379")
	v.SetDefault("ledger.redis_password", "")
	v.SetDefault("ledger.redis_db", 0)
}

// Load reads configuration from path, or from the default config dir when
// path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	configDir := filepath.Join(homeDir, DefaultConfigDir)
	if err := ensureDir(configDir); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(configDir)
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, filepath.Ext(DefaultConfigFile)))
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	cfg.ConfigDir = configDir
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.resolvePaths()
	return cfg, nil
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and closed-set values.
func (c *Config) Validate() error {
	g := c.Guardrails
	if g.ActionTTL <= 0 {
		return fmt.Errorf("guardrails.action_ttl must be positive, got %s", g.ActionTTL)
	}
	if g.NonceLength < 6 || g.NonceLength > 12 {
		return fmt.Errorf("guardrails.nonce_length must be within 6..12, got %d", g.NonceLength)
	}
	if g.CommentMaxLen <= 0 {
		return fmt.Errorf("guardrails.comment_max_len must be positive, got %d", g.CommentMaxLen)
	}
	if g.ToolTimeout <= 0 {
		return fmt.Errorf("guardrails.tool_timeout must be positive, got %s", g.ToolTimeout)
	}

	s := c.SelfRAG
	if s.MaxAttempts < 1 {
		return fmt.Errorf("selfrag.max_attempts must be at least 1, got %d", s.MaxAttempts)
	}
	if s.MinCitations < 0 {
		return fmt.Errorf("selfrag.min_citations must not be negative, got %d", s.MinCitations)
	}
	if s.InitialLimit < 1 || s.WidenStep < 0 {
		return fmt.Errorf("selfrag.initial_limit must be >= 1 and widen_step >= 0")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	switch c.LLM.Provider {
	case "openai", "google", "vllm":
	default:
		return fmt.Errorf("llm.provider must be openai, google or vllm, got %q", c.LLM.Provider)
	}
	switch c.Ledger.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("ledger.backend must be memory or redis, got %q", c.Ledger.Backend)
	}
	if c.API.MaxSessions < 1 {
		return fmt.Errorf("api.max_sessions must be at least 1, got %d", c.API.MaxSessions)
	}
	if c.RAG.ChunkSize <= 0 || c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be within [0, chunk_size)")
	}
	return nil
}

// Addr is the listen address for the HTTP API.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func (c *Config) resolvePaths() {
	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(c.ConfigDir, DefaultLogFile)
	}
	if c.RAG.DBPath == "" {
		c.RAG.DBPath = filepath.Join(c.ConfigDir, DefaultDBFile)
	}
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
