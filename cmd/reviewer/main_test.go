package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"articlereview/internal/config"
	"articlereview/internal/llm"
	"articlereview/internal/mcp"
	"articlereview/internal/pipeline"
	"articlereview/internal/schema"
	"articlereview/internal/types"
)

func useConfig(t *testing.T, c *config.Config) {
	t.Helper()
	logger = zap.NewNop()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func sampleState() *pipeline.State {
	keys := schema.DefaultExtractionKeys("artcle")
	st := pipeline.NewState("run-1", types.InputText, "texto", keys)
	st.ChosenArea = "Medicine"
	st.Extraction.Problem = "dosagem <segura>"
	st.Extraction.Steps = []string{"a", "b", "c"}
	st.Extraction.Conclusion = "funciona"
	st.ReviewMarkdown = "## Resenha\n**Pontos positivos:** ok\n\n**Possíveis falhas:** n\n"
	st.Warn("Failed get_article_content for doc_B: timeout")
	return st
}

func TestWriteOutputs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	st := sampleState()
	require.NoError(t, writeOutputs(dir, st))

	review, err := os.ReadFile(filepath.Join(dir, reviewFile))
	require.NoError(t, err)
	assert.Equal(t, st.ReviewMarkdown, string(review))

	extraction, err := os.ReadFile(filepath.Join(dir, extractionFile))
	require.NoError(t, err)
	var ex map[string]any
	require.NoError(t, json.Unmarshal(extraction, &ex))
	assert.Len(t, ex, 3)
	assert.Equal(t, "funciona", ex["conclusion"])

	agent, err := os.ReadFile(filepath.Join(dir, agentFile))
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(agent, &out))
	assert.Contains(t, out, "area")
	assert.Contains(t, out, "extraction")
	assert.Contains(t, out, "review_markdown")
	assert.NotContains(t, out, "warnings")
	assert.Contains(t, string(agent), "Possíveis falhas")
}

func TestEncodeJSON_Verbose(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeJSON(&buf, sampleState().Verbose()))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "Medicine", out["area"])
	assert.Equal(t, []any{"Failed get_article_content for doc_B: timeout"}, out["warnings"])
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"area\""))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sampleState())
	assert.Contains(t, buf.String(), "Medicine")
	assert.Contains(t, buf.String(), "Failed get_article_content for doc_B: timeout")
}

func TestRunReview_MissingCredential(t *testing.T) {
	c := config.DefaultConfig()
	c.LLM.Provider = "openai"
	c.LLM.APIKey = ""
	useConfig(t, c)

	err := runReview(&cobra.Command{}, nil)
	assert.ErrorIs(t, err, llm.ErrMissingCredential)
}

func TestRunReview_InvalidSpelling(t *testing.T) {
	useConfig(t, config.DefaultConfig())
	keySpell = "articel"
	defer func() { keySpell = "" }()

	err := runReview(&cobra.Command{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem-key-spelling")
}

func TestTransportFactory(t *testing.T) {
	c := config.DefaultConfig()
	c.MCP.Protocol = "http"
	useConfig(t, c)

	_, err := transportFactory()()
	assert.Error(t, err)

	c.MCP.BaseURL = "http://localhost:8080/mcp"
	tr, err := transportFactory()()
	require.NoError(t, err)
	assert.IsType(t, &mcp.HTTPTransport{}, tr)

	c.MCP.Protocol = "stdio"
	tr, err = transportFactory()()
	require.NoError(t, err)
	assert.IsType(t, &mcp.StdioTransport{}, tr)
}

func TestServingEmbeddingConfig(t *testing.T) {
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.Paths.ManifestPath = filepath.Join(dir, "manifest.json")
	c.Embedding.GenAIAPIKey = "secret"
	useConfig(t, c)

	// Without a manifest the configured embedder is used.
	assert.Equal(t, "genai", servingEmbeddingConfig().Provider)

	manifest := `{"embedding_config":{"provider":"ollama","model":"nomic-embed-text","embedding_dimension":768,"endpoint":"http://gpu:11434"}}`
	require.NoError(t, os.WriteFile(c.Paths.ManifestPath, []byte(manifest), 0644))

	ec := servingEmbeddingConfig()
	assert.Equal(t, "ollama", ec.Provider)
	assert.Equal(t, "nomic-embed-text", ec.OllamaModel)
	assert.Equal(t, "http://gpu:11434", ec.OllamaEndpoint)
	assert.Equal(t, "secret", ec.GenAIAPIKey)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "index", "search"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	for _, flag := range []string{"input-kind", "input", "out-dir", "problem-key-spelling", "render"} {
		assert.NotNil(t, runCmd.Flags().Lookup(flag), "missing run flag %s", flag)
	}
	assert.NotNil(t, indexCmd.Flags().Lookup("reset"))
	assert.NotNil(t, serveCmd.Flags().Lookup("http"))
}
