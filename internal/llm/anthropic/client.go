// Package anthropic adapts the anthropic-sdk-go SDK to the llm.Client
// contract. Anthropic has no managed fine-tuning endpoint, so FineTune
// returns a DependencyError rather than silently no-op-ing.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Client wraps an anthropic.Client behind a circuit breaker.
type Client struct {
	sdk     anthropic.Client
	breaker *gobreaker.CircuitBreaker
}

// New builds a Client authenticated with apiKey.
func New(apiKey string) *Client {
	return &Client{
		sdk: anthropic.NewClient(option.WithAPIKey(apiKey)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "llm.anthropic",
		}),
	}
}

func (c *Client) ChatCompletion(ctx context.Context, model string, messages []domain.Message, temperature float64, maxTokens int) (string, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		var system string
		var turns []anthropic.MessageParam
		for _, m := range messages {
			switch m.Role {
			case "system":
				system = m.Content
			case "assistant":
				turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			default:
				turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
		if maxTokens <= 0 {
			maxTokens = 1024
		}

		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(model),
			MaxTokens:   int64(maxTokens),
			Temperature: anthropic.Float(temperature),
			Messages:    turns,
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}

		resp, err := c.sdk.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		var text string
		for _, block := range resp.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		return text, nil
	})
	if err != nil {
		return "", domain.NewDependencyError("anthropic", "chat completion", err)
	}
	return out.(string), nil
}

func (c *Client) FineTune(ctx context.Context, trainingFile, validationFile, model, suffix string, hyperparameters map[string]any) (string, error) {
	return "", domain.NewDependencyError("anthropic", "fine-tune", errNotSupported)
}

var errNotSupported = &notSupportedError{}

type notSupportedError struct{}

func (e *notSupportedError) Error() string {
	return "anthropic does not expose a managed fine-tuning endpoint"
}
