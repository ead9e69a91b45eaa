package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"articlereview/internal/embedding"
	"articlereview/internal/indexer"
	"articlereview/internal/ingest"
	"articlereview/internal/store"
)

var resetIndex bool

// indexCmd builds the chunk index
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the chunk index from the corpus metadata",
	Long: `Reads ARTICLES_DIR/metadata.json, ingests every listed document (text,
pdf or url), cleans and chunks it, embeds the chunks and upserts them into
the configured index. Writes per-document chunk files, stats.json and
manifest.json to PROCESSED_DIR.

Entries that fail are logged and skipped.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&resetIndex, "reset", false, "Drop the collection before indexing")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ec := embeddingConfig()
	embedder, err := embedding.NewEngine(ctx, ec)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	opts := storeOptions(embedder.Dimensions())
	index, err := store.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	ix := indexer.New(ingest.DefaultRegistry(nil), embedder, ec, index, indexer.Options{
		MetadataPath: cfg.MetadataPath(),
		ProcessedDir: cfg.Paths.ProcessedDir,
		ChunkSize:    cfg.Indexing.ChunkSize,
		ChunkOverlap: cfg.Indexing.ChunkOverlap,
		BatchSize:    cfg.Indexing.BatchSize,
		Workers:      cfg.Indexing.Workers,
		Reset:        resetIndex,
		Store:        opts,
	})
	report, err := ix.Run(ctx)
	if err != nil {
		return err
	}

	failed := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		logger.Warn("Skipped entry", zap.String("id", id), zap.String("reason", report.Failed[id]))
	}
	logger.Info("Index built",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("took", report.Duration))
	fmt.Printf("Indexed %d documents (%d chunks), %d skipped\n", report.Documents, report.Chunks, len(report.Failed))
	return nil
}
