package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)

	dist, err := CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, dist, 1e-9)

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, sim)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestConfigApplyManifestInfo(t *testing.T) {
	base := DefaultConfig()
	base.GenAIAPIKey = "secret"

	got := base.Apply(Info{Provider: "ollama", Model: "nomic-embed-text", Endpoint: "http://gpu:11434"})
	assert.Equal(t, "ollama", got.Provider)
	assert.Equal(t, "nomic-embed-text", got.OllamaModel)
	assert.Equal(t, "http://gpu:11434", got.OllamaEndpoint)
	assert.Equal(t, "secret", got.GenAIAPIKey)

	assert.Equal(t, base, base.Apply(Info{}), "empty info leaves config untouched")
}

func TestNewEngine_UnsupportedProvider(t *testing.T) {
	_, err := NewEngine(context.Background(), Config{Provider: "word2vec"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported embedding provider")
}

func TestNewGenAIEngine_RequiresKey(t *testing.T) {
	_, err := NewGenAIEngine(context.Background(), "", "", "")
	require.Error(t, err)
}

func TestOllamaEngine_Embed(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts = append(prompts, req.Prompt)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.5, -0.25, 1}})
	}))
	defer srv.Close()

	engine, err := NewOllamaEngine(srv.URL, "test-embed")
	require.NoError(t, err)
	assert.Equal(t, "ollama:test-embed", engine.Name())
	assert.Zero(t, engine.Dimensions())

	vecs, err := engine.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vecs[1])
	assert.Equal(t, 3, engine.Dimensions())
	assert.Equal(t, []string{"a", "b"}, prompts)

	info := Describe(Config{Provider: "ollama", OllamaModel: "test-embed", OllamaEndpoint: srv.URL}, engine)
	assert.Equal(t, 3, info.Dimensions)
	assert.Equal(t, "test-embed", info.Model)
}
