package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"articlereview/internal/embedding"
	"articlereview/internal/indexer"
	"articlereview/internal/llm"
	"articlereview/internal/mcp"
	"articlereview/internal/store"
)

// newModel builds the chat model. A missing credential is a configuration
// error and aborts the command.
func newModel(ctx context.Context) (llm.Client, error) {
	return llm.NewClient(ctx, llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.GetLLMTimeout(),
		MaxRetries:  cfg.LLM.MaxRetries,
	})
}

// transportFactory returns a factory for the configured MCP transport.
func transportFactory() mcp.TransportFactory {
	switch cfg.MCP.Protocol {
	case "http":
		return func() (mcp.Transport, error) {
			if cfg.MCP.BaseURL == "" {
				return nil, fmt.Errorf("mcp protocol http needs a base_url")
			}
			return mcp.NewHTTPTransport(cfg.MCP.BaseURL), nil
		}
	default:
		lc := mcp.LaunchConfigFromEnv(cfg.MCP.Command, cfg.MCP.Args)
		return func() (mcp.Transport, error) {
			return mcp.NewStdioTransport(lc), nil
		}
	}
}

func newBridge() *mcp.Bridge {
	return mcp.NewBridge(transportFactory(), mcp.BridgeOptions{
		CallTimeout:    cfg.GetToolTimeout(),
		SessionTimeout: 30 * time.Second,
	})
}

func embeddingConfig() embedding.Config {
	return embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	}
}

// servingEmbeddingConfig is the embedder that built the index, when a
// manifest is available, so query vectors match the stored ones.
func servingEmbeddingConfig() embedding.Config {
	ec := embeddingConfig()
	m, err := indexer.LoadManifest(cfg.Paths.ManifestPath)
	switch {
	case err == nil:
		logger.Info("Using embedder from manifest",
			zap.String("provider", m.Embedding.Provider),
			zap.String("model", m.Embedding.Model),
			zap.Int("dimensions", m.Embedding.Dimensions))
		return ec.Apply(m.Embedding)
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("No index manifest; using configured embedder", zap.String("path", cfg.Paths.ManifestPath))
	default:
		logger.Warn("Ignoring unreadable index manifest", zap.Error(err))
	}
	return ec
}

func storeOptions(dimensions int) store.Options {
	return store.Options{
		Backend:    cfg.Index.Backend,
		Driver:     cfg.Index.Driver,
		Path:       cfg.Index.Path,
		Collection: cfg.Index.Collection,
		QdrantAddr: cfg.Index.QdrantAddr,
		Dimensions: dimensions,
	}
}
