// Package llm defines the chat/fine-tune collaborator contract consumed by
// the hierarchical retriever's query decomposition, the cross-modal
// fusion's query synthesis, and the continuous learning pipeline's
// generative fine-tunes. Two concrete backends are wired behind it
// (OpenAI, Anthropic), selectable by configuration, plus a deterministic
// fake for tests.
package llm

import (
	"context"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Client is the external LLM collaborator. Implementations translate
// backend-specific failures into domain.DependencyError before returning.
type Client interface {
	ChatCompletion(ctx context.Context, model string, messages []domain.Message, temperature float64, maxTokens int) (string, error)
	FineTune(ctx context.Context, trainingFile, validationFile, model, suffix string, hyperparameters map[string]any) (fineTunedModel string, err error)
}
