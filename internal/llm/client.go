// Package llm holds the language model clients used by every pipeline stage.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client is the model collaborator. Implementations must be safe for
// sequential use by one pipeline run.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider identifies a model backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// ErrMissingCredential is returned by NewClient when the chosen provider
// needs an API key and none was configured.
var ErrMissingCredential = errors.New("missing model credential")

// Config holds the resolved client settings.
type Config struct {
	Provider    Provider
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.1"
	default:
		return "gemini-2.0-flash"
	}
}

// NewClient builds the configured client wrapped with timeout and retry.
// A missing credential or an unknown provider is a configuration error.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	cfg.Provider = Provider(strings.ToLower(strings.TrimSpace(string(cfg.Provider))))
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}

	var (
		base Client
		err  error
	)
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: set GEMINI_API_KEY or GOOGLE_API_KEY", ErrMissingCredential)
		}
		base, err = NewGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingCredential)
		}
		base = NewOpenAIClient(cfg)
	case ProviderOllama:
		base, err = NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewResilientClient(base, cfg.Timeout, cfg.MaxRetries), nil
}
