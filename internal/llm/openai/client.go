// Package openai adapts the openai-go SDK to the llm.Client contract.
package openai

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Client wraps an openai.Client behind a gobreaker circuit breaker so a
// degraded OpenAI backend cannot stall every caller queued behind it.
type Client struct {
	sdk     openai.Client
	breaker *gobreaker.CircuitBreaker
}

// New builds a Client authenticated with apiKey.
func New(apiKey string) *Client {
	return &Client{
		sdk: openai.NewClient(option.WithAPIKey(apiKey)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "llm.openai",
		}),
	}
}

func (c *Client) ChatCompletion(ctx context.Context, model string, messages []domain.Message, temperature float64, maxTokens int) (string, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		params := openai.ChatCompletionNewParams{
			Model:       model,
			Temperature: openai.Float(temperature),
		}
		if maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(maxTokens))
		}
		for _, m := range messages {
			switch m.Role {
			case "system":
				params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
			case "assistant":
				params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
			default:
				params.Messages = append(params.Messages, openai.UserMessage(m.Content))
			}
		}

		resp, err := c.sdk.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", domain.NewDependencyError("openai", "chat completion", err)
	}
	return out.(string), nil
}

// FineTune creates an OpenAI fine-tuning job and returns the job's ID. It
// does not wait for the job to finish, so the returned string is the job
// ID, not the name of a fine-tuned model.
func (c *Client) FineTune(ctx context.Context, trainingFile, validationFile, model, suffix string, hyperparameters map[string]any) (string, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		params := openai.FineTuningJobNewParams{
			TrainingFile: trainingFile,
			Model:        openai.FineTuningJobNewParamsModel(model),
		}
		if validationFile != "" {
			params.ValidationFile = openai.String(validationFile)
		}
		if suffix != "" {
			params.Suffix = openai.String(suffix)
		}

		job, err := c.sdk.FineTuning.Jobs.New(ctx, params)
		if err != nil {
			return "", err
		}
		return job.ID, nil
	})
	if err != nil {
		return "", domain.NewDependencyError("openai", "fine-tune", err)
	}
	return out.(string), nil
}

var _ interface {
	ChatCompletion(context.Context, string, []domain.Message, float64, int) (string, error)
	FineTune(context.Context, string, string, string, string, map[string]any) (string, error)
} = (*Client)(nil)
