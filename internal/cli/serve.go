package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mofangju/security-agent/internal/server"
)

var (
	serveHost   string
	servePort   int
	serveIngest bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat API",
	Long: `Serve /v1/chat, /healthz, /readyz and /metrics.

Examples:
  security-agent serve
  security-agent serve --port 9000 --ingest`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveIngest, "ingest", false, "Index rag.docs_dir in the background on start")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort != 0 {
		cfg.API.Port = servePort
	}

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := server.NewRouter(&server.Handler{
		Assistant: rt.assistant,
		Audit:     rt.audit,
		Logger:    logger.Named("http"),
		Ready:     rt.readyChecks(),
	})
	srv := server.NewServer(cfg.API.Addr(), handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, srv, logger)
	})
	if serveIngest {
		g.Go(func() error {
			return backgroundIngest(gctx, rt, logger)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// backgroundIngest indexes the docs directory without blocking startup. A
// failed index is logged; the API keeps serving what is already indexed.
func backgroundIngest(ctx context.Context, rt *runtime, logger *zap.Logger) error {
	stats, err := rt.knowledge.IngestDir(ctx, rt.cfg.RAG.DocsDir, "")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("background ingest failed", zap.String("dir", rt.cfg.RAG.DocsDir), zap.Error(err))
		return nil
	}
	logger.Info("knowledge base indexed",
		zap.String("dir", rt.cfg.RAG.DocsDir),
		zap.Int("files", stats.Files),
		zap.Int("chunks", stats.Chunks))
	return nil
}
