package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mofangju/security-agent/internal/config"
	"github.com/mofangju/security-agent/internal/ledger"
	"github.com/mofangju/security-agent/internal/llm"
	"github.com/mofangju/security-agent/internal/safeline"
)

const statusTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show security-agent status: config, SafeLine, knowledge base, ledger, audit",
	Long: `Check whether every dependency Lumina needs is reachable.

  security-agent status`,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	fmt.Fprintln(out, "=======================================================")
	fmt.Fprintln(out, "  security-agent status")
	fmt.Fprintln(out, "=======================================================")
	fmt.Fprintln(out)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(out, "  Binary:    %s (%s)\n", binPath, Version)
	configFile := cfg.ConfigFile
	if configFile == "" {
		configFile = "(defaults)"
	}
	fmt.Fprintf(out, "  Config:    %s\n", configFile)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "--- SafeLine -------------------------------------------")
	checkSafeLine(ctx, out, cfg)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "--- LLM ------------------------------------------------")
	if client, err := llm.New(cfg.LLM, logger); err != nil {
		fmt.Fprintf(out, "  \xe2\x9d\x8c %s: %v\n", cfg.LLM.Provider, err)
	} else {
		fmt.Fprintf(out, "  \xe2\x9c\x85 %s\n", client.Name())
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "--- Knowledge base -------------------------------------")
	if kb, err := openKnowledge(cfg, logger); err != nil {
		fmt.Fprintf(out, "  \xe2\x9d\x8c %v\n", err)
	} else {
		n, err := kb.Count(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(out, "  \xe2\x9d\x8c %s: %v\n", cfg.RAG.DBPath, err)
		case n == 0:
			fmt.Fprintf(out, "  \xe2\x9a\xa0\xef\xb8\x8f  %s is empty (run: security-agent ingest)\n", cfg.RAG.DBPath)
		default:
			fmt.Fprintf(out, "  \xe2\x9c\x85 %s (%d chunks)\n", cfg.RAG.DBPath, n)
		}
		_ = kb.Close()
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "--- Confirmation ledger --------------------------------")
	checkLedger(ctx, out, cfg)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "--- Audit ----------------------------------------------")
	switch {
	case !cfg.Audit.Enabled:
		fmt.Fprintln(out, "  \xe2\x9a\xa0\xef\xb8\x8f  disabled (metrics only)")
	default:
		if info, err := os.Stat(cfg.Audit.Path); err == nil {
			fmt.Fprintf(out, "  \xe2\x9c\x85 %s (%d bytes)\n", cfg.Audit.Path, info.Size())
		} else {
			fmt.Fprintf(out, "  \xe2\x80\xa2 %s (not created yet)\n", cfg.Audit.Path)
		}
	}
	fmt.Fprintln(out)
	return nil
}

func checkSafeLine(ctx context.Context, out io.Writer, cfg *config.Config) {
	client, err := safeline.New(safeline.Config{
		BaseURL:   cfg.SafeLine.URL,
		APIToken:  cfg.SafeLine.APIToken,
		Timeout:   cfg.SafeLine.Timeout,
		VerifyTLS: cfg.SafeLine.VerifyTLS,
		CABundle:  cfg.SafeLine.CABundle,
	})
	if err != nil {
		fmt.Fprintf(out, "  \xe2\x9d\x8c %v\n", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if _, err := client.SystemInfo(ctx); err != nil {
		fmt.Fprintf(out, "  \xe2\x9d\x8c %s unreachable: %v\n", cfg.SafeLine.URL, err)
		return
	}
	fmt.Fprintf(out, "  \xe2\x9c\x85 %s\n", cfg.SafeLine.URL)
	if cfg.SafeLine.APIToken == "" {
		fmt.Fprintln(out, "  \xe2\x9a\xa0\xef\xb8\x8f  no API token configured (safeline.api_token)")
	}
}

func checkLedger(ctx context.Context, out io.Writer, cfg *config.Config) {
	if cfg.Ledger.Backend != "redis" {
		fmt.Fprintln(out, "  \xe2\x9c\x85 memory (pending actions are lost on restart)")
		return
	}
	store := ledger.NewRedisStore(cfg.Ledger.RedisAddr, cfg.Ledger.RedisPassword, cfg.Ledger.RedisDB)
	defer func() { _ = store.Close() }()
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		fmt.Fprintf(out, "  \xe2\x9d\x8c redis %s: %v\n", cfg.Ledger.RedisAddr, err)
		return
	}
	fmt.Fprintf(out, "  \xe2\x9c\x85 redis %s\n", cfg.Ledger.RedisAddr)
}
