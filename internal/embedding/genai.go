package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"google.golang.org/genai"

	"articlereview/internal/logging"
)

// =============================================================================
// GOOGLE GENAI EMBEDDING ENGINE
// =============================================================================

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client    *genai.Client
	model     string
	queryTask string
	docTask   string
	dims      atomic.Int64
}

// NewGenAIEngine creates a new GenAI embedding engine.
func NewGenAIEngine(ctx context.Context, apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	queryTask := NormalizeTaskType(taskType)
	if taskType == "" {
		queryTask = SelectTaskType(ContentTypeQuery)
	}

	return &GenAIEngine{
		client:    client,
		model:     model,
		queryTask: queryTask,
		docTask:   SelectTaskType(ContentTypeArticle),
	}, nil
}

// Embed generates an embedding for a single query.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, e.queryTask)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple documents in one request.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, e.docTask)
}

func (e *GenAIEngine) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: task,
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	if len(out[0]) > 0 {
		e.dims.Store(int64(len(out[0])))
	}
	logging.EmbeddingDebug("GenAI embedded %d texts (task=%s)", len(texts), task)
	return out, nil
}

// Dimensions returns the dimensionality observed on the last call.
func (e *GenAIEngine) Dimensions() int {
	return int(e.dims.Load())
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}

var _ EmbeddingEngine = (*GenAIEngine)(nil)
