package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	ingestReset    bool
	ingestUploadID string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [docs-dir]",
	Short: "Index markdown documentation into the knowledge base",
	Long: `Chunk every *.md file in the directory by section and index it for
grounded answers. Re-ingesting a file replaces its previous chunks.

Examples:
  security-agent ingest                  # index rag.docs_dir
  security-agent ingest ./docs --reset   # rebuild from ./docs
  security-agent ingest ./upload --upload-id ticket-42`,
	Args: cobra.MaximumNArgs(1),
	RunE: ingestCommand,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "Drop all indexed chunks first")
	ingestCmd.Flags().StringVar(&ingestUploadID, "upload-id", "", "Tag chunks with an upload ID for scoped retrieval")
	rootCmd.AddCommand(ingestCmd)
}

func ingestCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dir := cfg.RAG.DocsDir
	if len(args) == 1 {
		dir = args[0]
	}

	kb, err := openKnowledge(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = kb.Close() }()

	ctx := cmd.Context()
	if ingestReset {
		if err := kb.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset knowledge base: %w", err)
		}
	}
	stats, err := kb.IngestDir(ctx, dir, ingestUploadID)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", dir, err)
	}
	total, err := kb.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d files (%d chunks) from %s\n", stats.Files, stats.Chunks, dir)
	fmt.Fprintf(out, "Knowledge base now holds %d chunks: %s\n", total, cfg.RAG.DBPath)
	return nil
}
