package prompts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMaterialSystemPrompt(t *testing.T) {
	cases := []struct {
		name         string
		materialType string
		contains     string
	}{
		{"exact match wood", "wood", "wood materials expert"},
		{"exact match tile", "Tile", "tile materials expert"},
		{"texture-focused fallthrough", "leather", "texture-focused"},
		{"color-focused fallthrough", "paint", "color-focused"},
		{"structure-focused fallthrough", "concrete", "structure-focused"},
		{"soft fallthrough no exact/category priority", "carpet", "carpet materials expert"},
		{"generic fallback", "quartzite-composite", "construction"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prompt := GetMaterialSystemPrompt(tc.materialType)
			assert.Contains(t, prompt, tc.contains)
		})
	}
}

func TestGetMaterialDetailInstructions(t *testing.T) {
	brief := GetMaterialDetailInstructions("wood", DetailBrief)
	medium := GetMaterialDetailInstructions("wood", DetailMedium)
	detailed := GetMaterialDetailInstructions("wood", DetailDetailed)
	assert.NotEqual(t, brief, medium)
	assert.NotEqual(t, medium, detailed)

	// invalid detail level defaults to Medium
	invalid := GetMaterialDetailInstructions("wood", DetailLevel("bogus"))
	assert.Equal(t, medium, invalid)

	// material type with no specific entry falls back to the "other" table
	other := GetMaterialDetailInstructions("quartzite-composite", DetailMedium)
	assert.Equal(t, materialDetailInstructions["other"][DetailMedium], other)
}

func TestEvaluationCriteria(t *testing.T) {
	wood := EvaluationCriteria("wood")
	assert.Contains(t, wood, "Species identification accuracy")

	other := EvaluationCriteria("quartzite-composite")
	assert.Equal(t, materialEvaluationCriteria["other"], other)
}

func TestBuildMaterialSpecificPrompt_Explanation(t *testing.T) {
	system, user := BuildMaterialSpecificPrompt("wood", "is oak durable", "context about oak", DetailMedium, PromptExplanation)
	assert.Contains(t, system, "wood materials expert")
	assert.Contains(t, system, "Explain its key properties")
	assert.Contains(t, user, "is oak durable")
	assert.Contains(t, user, "context about oak")
}

func TestBuildMaterialSpecificPrompt_Similarity(t *testing.T) {
	system, user := BuildMaterialSpecificPrompt("tile", "tile vs stone", "context", DetailDetailed, PromptSimilarity)
	assert.Contains(t, system, "tile materials expert")
	assert.Contains(t, system, "Compare the materials")
	assert.Contains(t, user, "compare and contrast")
}

func TestBuildMaterialSpecificPrompt_Application(t *testing.T) {
	system, user := BuildMaterialSpecificPrompt("metal", "where to use brass", "context", DetailBrief, PromptApplication)
	assert.Contains(t, system, "metal materials expert")
	assert.Contains(t, system, "recommend specific applications")
	assert.Contains(t, user, "recommend specific applications")
}

type fakeTemplateBackend struct {
	prompt string
	err    error
	calls  int
}

func (f *fakeTemplateBackend) FetchPrompt(ctx context.Context, name, promptType string) (string, error) {
	f.calls++
	return f.prompt, f.err
}

func TestCachedTemplateStore_CachesSuccessfulFetch(t *testing.T) {
	backend := &fakeTemplateBackend{prompt: "a custom prompt"}
	store := NewCachedTemplateStore(backend)

	v1, err := store.FetchPrompt(context.Background(), "wood", "material_system_prompt")
	require.NoError(t, err)
	v2, err := store.FetchPrompt(context.Background(), "wood", "material_system_prompt")
	require.NoError(t, err)

	assert.Equal(t, "a custom prompt", v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, backend.calls)
}

func TestCachedTemplateStore_ClearCacheForcesRefetch(t *testing.T) {
	backend := &fakeTemplateBackend{prompt: "a custom prompt"}
	store := NewCachedTemplateStore(backend)

	_, err := store.FetchPrompt(context.Background(), "wood", "material_system_prompt")
	require.NoError(t, err)
	store.ClearCache()
	_, err = store.FetchPrompt(context.Background(), "wood", "material_system_prompt")
	require.NoError(t, err)

	assert.Equal(t, 2, backend.calls)
}

func TestGetMaterialSystemPromptWithStore_FallsBackOnError(t *testing.T) {
	backend := &fakeTemplateBackend{err: errors.New("db unavailable")}
	store := NewCachedTemplateStore(backend)

	prompt := GetMaterialSystemPromptWithStore(context.Background(), store, "wood")
	assert.Equal(t, GetMaterialSystemPrompt("wood"), prompt)
}

func TestGetMaterialSystemPromptWithStore_NilStoreFallsBack(t *testing.T) {
	prompt := GetMaterialSystemPromptWithStore(context.Background(), nil, "tile")
	assert.Equal(t, GetMaterialSystemPrompt("tile"), prompt)
}

func TestGetMaterialSystemPromptWithStore_UsesBackendValue(t *testing.T) {
	backend := &fakeTemplateBackend{prompt: "overridden system prompt"}
	store := NewCachedTemplateStore(backend)

	prompt := GetMaterialSystemPromptWithStore(context.Background(), store, "wood")
	assert.Equal(t, "overridden system prompt", prompt)
}

func TestEstimateTokens(t *testing.T) {
	short := EstimateTokens("oak")
	longer := EstimateTokens("oak flooring is a durable and classic choice for residential homes")
	assert.Positive(t, short)
	assert.Greater(t, longer, short)
}
