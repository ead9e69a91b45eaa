// Package embedding provides vector embedding generation for the chunk index
// and for search queries. Supports Google GenAI (cloud) and Ollama (local).
package embedding

import (
	"context"
	"fmt"
	"math"

	"articlereview/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates the embedding of a search query.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings of documents to be indexed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings, or 0 before the
	// first call when the backend does not advertise it.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "genai" or "ollama"
	Provider string `json:"provider"`

	OllamaEndpoint string `json:"ollama_endpoint,omitempty"`
	OllamaModel    string `json:"ollama_model,omitempty"`

	GenAIAPIKey string `json:"-"`
	GenAIModel  string `json:"genai_model,omitempty"`

	// TaskType for GenAI queries, e.g. "RETRIEVAL_QUERY".
	TaskType string `json:"task_type,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:       "genai",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "RETRIEVAL_QUERY",
	}
}

// Info describes an engine for the index manifest, so the retrieval service
// can rebuild the same embedder that produced the stored vectors.
type Info struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"embedding_dimension"`
	TaskType   string `json:"task_type,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
}

// Apply overlays manifest info onto a config. The API key is never part of
// the manifest and is kept from the receiver.
func (c Config) Apply(info Info) Config {
	if info.Provider == "" {
		return c
	}
	c.Provider = info.Provider
	switch info.Provider {
	case "genai":
		if info.Model != "" {
			c.GenAIModel = info.Model
		}
	case "ollama":
		if info.Model != "" {
			c.OllamaModel = info.Model
		}
		if info.Endpoint != "" {
			c.OllamaEndpoint = info.Endpoint
		}
	}
	return c
}

// Describe returns the manifest info for an engine built from cfg.
func Describe(cfg Config, engine EmbeddingEngine) Info {
	info := Info{Provider: cfg.Provider, Dimensions: engine.Dimensions()}
	switch cfg.Provider {
	case "genai":
		info.Model = cfg.GenAIModel
		info.TaskType = cfg.TaskType
	case "ollama":
		info.Model = cfg.OllamaModel
		info.Endpoint = cfg.OllamaEndpoint
	}
	return info
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(ctx context.Context, cfg Config) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)

	var engine EmbeddingEngine
	var err error

	switch cfg.Provider {
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s", engine.Name())
	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// CosineDistance is 1 - cosine similarity, in [0, 2].
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}
