package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 3200, cfg.LLM.MaxTokens)
	assert.Equal(t, 60, cfg.Retrieval.TopKChunks)
	assert.Equal(t, 5, cfg.Retrieval.TopKDocs)
	assert.Equal(t, 100, cfg.Retrieval.MaxChunks)
	assert.Equal(t, 40000, cfg.Retrieval.MaxChars)
	assert.Equal(t, 5, cfg.Pipeline.TopK)
	assert.Equal(t, 10*time.Second, cfg.GetToolTimeout())
	assert.Equal(t, "artcle", cfg.Pipeline.ProblemKeySpelling)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Index, cfg.Index)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewer.yaml")
	content := `
llm:
  provider: ollama
  model: llama3.2
  timeout: 45s
retrieval:
  top_k_docs: 3
  score_mode: invert
mcp:
  command: ./bin/reviewer
  args: [serve, --config, other.yaml]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 3, cfg.Retrieval.TopKDocs)
	assert.Equal(t, 60, cfg.Retrieval.TopKChunks, "unset keys keep defaults")
	assert.Equal(t, "invert", cfg.Retrieval.ScoreMode)
	assert.Equal(t, []string{"serve", "--config", "other.yaml"}, cfg.MCP.Args)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reviewer.yaml")
	cfg := DefaultConfig()
	cfg.Index.Backend = "qdrant"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant", loaded.Index.Backend)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "soon"
	cfg.Pipeline.ToolTimeout = ""

	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetToolTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "hf" }, "invalid LLM provider"},
		{"bad score mode", func(c *Config) { c.Retrieval.ScoreMode = "sqrt" }, "invalid score mode"},
		{"bad spelling", func(c *Config) { c.Pipeline.ProblemKeySpelling = "articel" }, "invalid problem key spelling"},
		{"overlap too large", func(c *Config) { c.Indexing.ChunkOverlap = c.Indexing.ChunkSize }, "chunk overlap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
