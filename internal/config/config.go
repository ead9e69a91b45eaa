package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all reviewer configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	MCP       MCPConfig       `yaml:"mcp"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Paths     PathsConfig     `yaml:"paths"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig configures the language model used by every pipeline stage.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // gemini, openai, ollama
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	MaxRetries  int     `yaml:"max_retries"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// EmbeddingConfig configures the query/document embedder.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // genai, ollama
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	TaskType       string `yaml:"task_type"`
}

// IndexConfig selects and locates the persistent vector index.
type IndexConfig struct {
	Backend    string `yaml:"backend"` // sqlite, qdrant
	Driver     string `yaml:"driver"`  // sqlite3 (cgo), sqlite (pure Go)
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	QdrantAddr string `yaml:"qdrant_addr"`
}

// RetrievalConfig tunes the ranking engine.
type RetrievalConfig struct {
	TopKChunks int    `yaml:"top_k_chunks"`
	TopKDocs   int    `yaml:"top_k_docs"`
	MaxChunks  int    `yaml:"max_chunks"`
	MaxChars   int    `yaml:"max_chars"`
	ScoreMode  string `yaml:"score_mode"` // auto, identity, invert
}

// PipelineConfig tunes the stage machine.
type PipelineConfig struct {
	TopK               int    `yaml:"top_k"`
	ToolTimeout        string `yaml:"tool_timeout"`
	ProblemKeySpelling string `yaml:"problem_key_spelling"` // artcle, article
	OutDir             string `yaml:"out_dir"`
}

// MCPConfig describes how to reach the retrieval service.
type MCPConfig struct {
	Protocol string   `yaml:"protocol"` // stdio, http
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args"`
	BaseURL  string   `yaml:"base_url"`
}

// IndexingConfig configures the out-of-band index build.
type IndexingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	BatchSize    int `yaml:"batch_size"`
	Workers      int `yaml:"workers"`
}

// PathsConfig locates corpus files.
type PathsConfig struct {
	ArticlesDir  string `yaml:"articles_dir"`
	ProcessedDir string `yaml:"processed_dir"`
	ManifestPath string `yaml:"manifest_path"`
}

// LoggingConfig configures the category file loggers.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			Timeout:     "120s",
			MaxRetries:  2,
			Temperature: 0.2,
			MaxTokens:   3200,
		},
		Embedding: EmbeddingConfig{
			Provider:       "genai",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			TaskType:       "RETRIEVAL_QUERY",
		},
		Index: IndexConfig{
			Backend:    "sqlite",
			Driver:     "sqlite3",
			Path:       "data/index.db",
			Collection: "articles",
			QdrantAddr: "localhost:6334",
		},
		Retrieval: RetrievalConfig{
			TopKChunks: 60,
			TopKDocs:   5,
			MaxChunks:  100,
			MaxChars:   40000,
			ScoreMode:  "auto",
		},
		Pipeline: PipelineConfig{
			TopK:               5,
			ToolTimeout:        "10s",
			ProblemKeySpelling: "artcle",
			OutDir:             "out",
		},
		MCP: MCPConfig{
			Protocol: "stdio",
			Command:  "reviewer",
			Args:     []string{"serve"},
		},
		Indexing: IndexingConfig{
			ChunkSize:    1200,
			ChunkOverlap: 200,
			BatchSize:    32,
			Workers:      4,
		},
		Paths: PathsConfig{
			ArticlesDir:  "data/articles",
			ProcessedDir: "data/processed",
			ManifestPath: "data/processed/manifest.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; env overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("REVIEWER_LLM_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}

	// Provider keys only apply to the provider they belong to.
	switch c.LLM.Provider {
	case "gemini":
		if key := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
		if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
			c.LLM.BaseURL = url
		}
	case "ollama":
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			c.LLM.BaseURL = host
		}
	}
	if model := os.Getenv("REVIEWER_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if key := firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}

	if cmd := strings.TrimSpace(os.Getenv("MCP_SERVER_CMD")); cmd != "" {
		c.MCP.Command = cmd
	}
	if args, ok := os.LookupEnv("MCP_SERVER_ARGS"); ok {
		c.MCP.Args = strings.Fields(args)
	}
	if url := os.Getenv("MCP_SERVER_URL"); url != "" {
		c.MCP.BaseURL = url
		c.MCP.Protocol = "http"
	}

	if path := os.Getenv("REVIEWER_DB"); path != "" {
		c.Index.Path = path
	}
	if name := os.Getenv("COLLECTION_NAME"); name != "" {
		c.Index.Collection = name
	}
	if addr := os.Getenv("QDRANT_HOST"); addr != "" {
		c.Index.QdrantAddr = addr
		c.Index.Backend = "qdrant"
	}

	if dir := os.Getenv("ARTICLES_DIR"); dir != "" {
		c.Paths.ArticlesDir = dir
	}
	if dir := os.Getenv("PROCESSED_DIR"); dir != "" {
		c.Paths.ProcessedDir = dir
	}
	if path := os.Getenv("MANIFEST_PATH"); path != "" {
		c.Paths.ManifestPath = path
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// GetLLMTimeout returns the model call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetToolTimeout returns the per tool call timeout as a duration.
func (c *Config) GetToolTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.ToolTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// MetadataPath is the document metadata file served by the retrieval process.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Paths.ArticlesDir, "metadata.json")
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "openai", "ollama"}

// ValidScoreModes lists the accepted distance-to-score conversions.
var ValidScoreModes = []string{"auto", "identity", "invert"}

// Validate validates the configuration. Credentials are checked when the
// model client is built, since serve and index never need one.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if !contains(ValidScoreModes, c.Retrieval.ScoreMode) {
		return fmt.Errorf("invalid score mode: %s (valid: %v)", c.Retrieval.ScoreMode, ValidScoreModes)
	}
	switch c.Pipeline.ProblemKeySpelling {
	case "artcle", "article":
	default:
		return fmt.Errorf("invalid problem key spelling: %s (valid: artcle, article)", c.Pipeline.ProblemKeySpelling)
	}
	if c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.Indexing.ChunkOverlap, c.Indexing.ChunkSize)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
