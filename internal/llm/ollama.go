package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"articlereview/internal/logging"
)

// OllamaClient implements Client against a local Ollama chat endpoint.
type OllamaClient struct {
	client  *api.Client
	model   string
	options map[string]interface{}
}

// NewOllamaClient creates an Ollama chat client. BaseURL defaults to the
// local daemon.
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama endpoint %q: %w", endpoint, err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel(ProviderOllama)
	}

	opts := map[string]interface{}{"temperature": cfg.Temperature}
	if cfg.MaxTokens > 0 {
		opts["num_predict"] = cfg.MaxTokens
	}

	return &OllamaClient{
		client:  api.NewClient(base, &http.Client{}),
		model:   model,
		options: opts,
	}, nil
}

// Complete sends a prompt and returns the completion.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OllamaClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()

	messages := make([]api.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: userPrompt})

	stream := false
	var sb strings.Builder
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Options:  c.options,
		Stream:   &stream,
	}, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}

	text := strings.TrimSpace(sb.String())
	logging.API("[Ollama] CompleteWithSystem: completed in %v response_len=%d", time.Since(start), len(text))
	return text, nil
}

var _ Client = (*OllamaClient)(nil)
