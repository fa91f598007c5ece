// Package fake provides a deterministic llm.Client test double.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Client is a deterministic llm.Client double. ChatFunc and FineTuneFunc
// may be set to override the default canned behavior; calls are recorded
// for assertions.
type Client struct {
	ChatFunc     func(ctx context.Context, model string, messages []domain.Message, temperature float64, maxTokens int) (string, error)
	FineTuneFunc func(ctx context.Context, trainingFile, validationFile, model, suffix string, hyperparameters map[string]any) (string, error)

	mu        sync.Mutex
	ChatCalls int
	FTCalls   int
}

func (c *Client) ChatCompletion(ctx context.Context, model string, messages []domain.Message, temperature float64, maxTokens int) (string, error) {
	c.mu.Lock()
	c.ChatCalls++
	c.mu.Unlock()
	if c.ChatFunc != nil {
		return c.ChatFunc(ctx, model, messages, temperature, maxTokens)
	}
	if len(messages) == 0 {
		return "", nil
	}
	return fmt.Sprintf("echo: %s", messages[len(messages)-1].Content), nil
}

func (c *Client) FineTune(ctx context.Context, trainingFile, validationFile, model, suffix string, hyperparameters map[string]any) (string, error) {
	c.mu.Lock()
	c.FTCalls++
	c.mu.Unlock()
	if c.FineTuneFunc != nil {
		return c.FineTuneFunc(ctx, trainingFile, validationFile, model, suffix, hyperparameters)
	}
	return fmt.Sprintf("%s-ft-%d", model, c.FTCalls), nil
}
