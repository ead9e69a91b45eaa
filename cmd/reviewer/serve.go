package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"articlereview/internal/embedding"
	"articlereview/internal/retrieval"
	"articlereview/internal/store"
	"articlereview/internal/toolserver"
)

var (
	httpAddr  string
	watchMeta bool
)

// serveCmd runs the retrieval tool server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search_articles and get_article_content over MCP",
	Long: `Opens the chunk index and the document metadata table and serves the
two retrieval tools. stdio is the default transport; --http serves the
streamable HTTP transport at /mcp instead.

The embedder is rebuilt from the index manifest when one exists, so query
vectors match the vectors written by reviewer index.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http", "", "Serve over HTTP on this address (e.g. :8080) instead of stdio")
	serveCmd.Flags().BoolVar(&watchMeta, "watch", true, "Reload the metadata file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, closeAll, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	s := toolserver.New(engine)
	if httpAddr != "" {
		logger.Info("Serving retrieval tools", zap.String("transport", "http"), zap.String("addr", httpAddr))
		return toolserver.ServeHTTP(ctx, s, httpAddr)
	}
	logger.Info("Serving retrieval tools", zap.String("transport", "stdio"))
	return toolserver.ServeStdio(ctx, s, os.Stdin, os.Stdout)
}

// openEngine opens the index, the metadata table and the embedder. The
// returned func releases them.
func openEngine(ctx context.Context) (*retrieval.Engine, func(), error) {
	embedder, err := embedding.NewEngine(ctx, servingEmbeddingConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	index, err := store.Open(ctx, storeOptions(embedder.Dimensions()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	metaPath := cfg.MetadataPath()
	rows, err := store.LoadDocMeta(metaPath)
	if err != nil {
		logger.Warn("Serving without document metadata", zap.String("path", metaPath), zap.Error(err))
		rows = nil
	}
	table := store.NewMetaTable(rows)
	logger.Info("Loaded document metadata", zap.Int("documents", table.Len()))

	var watcher *store.MetaWatcher
	if watchMeta {
		watcher, err = store.NewMetaWatcher(metaPath, table)
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			logger.Warn("Metadata watcher disabled", zap.Error(err))
			watcher = nil
		}
	}

	engine, err := retrieval.NewEngine(embedder, index, table, retrieval.Options{
		TopKChunks: cfg.Retrieval.TopKChunks,
		TopKDocs:   cfg.Retrieval.TopKDocs,
		MaxChunks:  cfg.Retrieval.MaxChunks,
		MaxChars:   cfg.Retrieval.MaxChars,
		ScoreMode:  retrieval.ScoreMode(cfg.Retrieval.ScoreMode),
	})
	if err != nil {
		index.Close()
		if watcher != nil {
			watcher.Stop()
		}
		return nil, nil, err
	}

	closeAll := func() {
		if watcher != nil {
			watcher.Stop()
		}
		if err := index.Close(); err != nil {
			logger.Warn("Closing index", zap.Error(err))
		}
	}
	return engine, closeAll, nil
}
