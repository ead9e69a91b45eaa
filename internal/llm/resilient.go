package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"articlereview/internal/logging"
)

// ResilientClient bounds every model call with a per-attempt timeout and
// retries transient failures with exponential backoff.
type ResilientClient struct {
	underlying Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewResilientClient wraps a client. A zero timeout leaves attempts
// unbounded; negative retries are treated as zero.
func NewResilientClient(underlying Client, timeout time.Duration, maxRetries int) *ResilientClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ResilientClient{
		underlying: underlying,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

// WithBackoff sets the base delay between attempts.
func (c *ResilientClient) WithBackoff(d time.Duration) *ResilientClient {
	c.backoff = d
	return c
}

// Complete sends a prompt and returns the completion.
func (c *ResilientClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *ResilientClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<uint(attempt-1))
			logging.APIWarn("model call attempt %d failed, retrying in %v: %v", attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		out, err := c.attempt(ctx, systemPrompt, userPrompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *ResilientClient) attempt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("model call timed out after %v: %w", c.timeout, err)
	}
	return out, err
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

var _ Client = (*ResilientClient)(nil)
