package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("GEMINI_API_KEY fills the gemini provider", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
		assert.Equal(t, "gem-key", cfg.Embedding.GenAIAPIKey)
	})

	t.Run("OPENAI_API_KEY ignored while provider is gemini", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Empty(t, cfg.LLM.APIKey)
	})

	t.Run("provider switch picks the matching key", func(t *testing.T) {
		t.Setenv("REVIEWER_LLM_PROVIDER", "openai")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("OPENAI_BASE_URL", "http://proxy.local/v1")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "openai", cfg.LLM.Provider)
		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "http://proxy.local/v1", cfg.LLM.BaseURL)
	})

	t.Run("OLLAMA_HOST feeds both chat and embeddings", func(t *testing.T) {
		t.Setenv("REVIEWER_LLM_PROVIDER", "ollama")
		t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
		assert.Equal(t, "http://gpu-box:11434", cfg.Embedding.OllamaEndpoint)
	})
}

func TestEnvOverrides_ToolServer(t *testing.T) {
	t.Run("command and args", func(t *testing.T) {
		t.Setenv("MCP_SERVER_CMD", "  /usr/local/bin/reviewer ")
		t.Setenv("MCP_SERVER_ARGS", "serve  --config prod.yaml")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/usr/local/bin/reviewer", cfg.MCP.Command)
		assert.Equal(t, []string{"serve", "--config", "prod.yaml"}, cfg.MCP.Args)
	})

	t.Run("server url switches to http", func(t *testing.T) {
		t.Setenv("MCP_SERVER_URL", "http://retrieval:8090/mcp")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http", cfg.MCP.Protocol)
		assert.Equal(t, "http://retrieval:8090/mcp", cfg.MCP.BaseURL)
	})
}

func TestEnvOverrides_Paths(t *testing.T) {
	t.Setenv("REVIEWER_DB", "/data/idx.db")
	t.Setenv("COLLECTION_NAME", "papers")
	t.Setenv("ARTICLES_DIR", "/data/articles")
	t.Setenv("PROCESSED_DIR", "/data/processed")
	t.Setenv("MANIFEST_PATH", "/data/processed/m.json")
	t.Setenv("QDRANT_HOST", "qdrant:6334")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/data/idx.db", cfg.Index.Path)
	assert.Equal(t, "papers", cfg.Index.Collection)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, "qdrant:6334", cfg.Index.QdrantAddr)
	assert.Equal(t, "/data/articles/metadata.json", cfg.MetadataPath())
	assert.Equal(t, "/data/processed", cfg.Paths.ProcessedDir)
	assert.Equal(t, "/data/processed/m.json", cfg.Paths.ManifestPath)
}
