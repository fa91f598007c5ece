package learning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	embeddingfake "github.com/Basilakis/kai-sub004/internal/embedding/fake"
	"github.com/Basilakis/kai-sub004/internal/feedback"
	llmfake "github.com/Basilakis/kai-sub004/internal/llm/fake"
	"github.com/Basilakis/kai-sub004/internal/registry"
	"github.com/Basilakis/kai-sub004/pkg/syncutil"
)

func newTestPipeline(t *testing.T) (*Pipeline, *registry.Registry, feedback.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := registry.NewFileStore(filepath.Join(dir, "registry"))
	require.NoError(t, err)
	reg := registry.New(store, zap.NewNop())

	fb, err := feedback.NewFileStore(filepath.Join(dir, "feedback.jsonl"))
	require.NoError(t, err)

	cfg := config.LearningPipelineConfig{
		MinFeedbackSamples:     2,
		FeedbackThreshold:      0.7,
		FineTuningIntervalDays: 0,
		TestSize:               0.2,
		ABTestDurationDays:     1,
		ModelsToCompare:        2,
		StateDir:               filepath.Join(dir, "state"),
		TempDir:                filepath.Join(dir, "temp"),
		MaxRating:              5,
		PrimaryMetric:          "accuracy",
	}

	p := New(cfg, reg, fb, &embeddingfake.Model{}, &llmfake.Client{}, syncutil.PoolOfNoPool(), zap.NewNop())
	return p, reg, fb
}

func seedFeedback(t *testing.T, fb feedback.Store, n int, rating int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, fb.SubmitFeedback(context.Background(), domain.FeedbackRecord{
			Query:    "what is oak flooring",
			Response: "oak is a hardwood",
			Feedback: domain.Feedback{Rating: rating},
		}))
	}
}

func TestPipeline_CheckFineTuningTriggers(t *testing.T) {
	tests := []struct {
		name      string
		seedCount int
		rating    int
		want      bool
	}{
		{name: "insufficient samples", seedCount: 1, rating: 1, want: false},
		{name: "quality already high", seedCount: 5, rating: 5, want: false},
		{name: "triggers fire", seedCount: 5, rating: 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, fb := newTestPipeline(t)
			seedFeedback(t, fb, tt.seedCount, tt.rating)

			got := p.CheckFineTuningTriggers(context.Background(), domain.ModelTypeEmbedding)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPipeline_CheckFineTuningTriggers_BusyStateBlocks(t *testing.T) {
	p, _, fb := newTestPipeline(t)
	seedFeedback(t, fb, 5, 1)

	p.setState(domain.ModelTypeEmbedding, StateFineTuning)
	assert.False(t, p.CheckFineTuningTriggers(context.Background(), domain.ModelTypeEmbedding))
}

func TestPipeline_RunFineTuning_EmbeddingPath(t *testing.T) {
	p, reg, fb := newTestPipeline(t)
	seedFeedback(t, fb, 5, 1)

	require.NoError(t, p.RunFineTuning(context.Background(), domain.ModelTypeEmbedding))

	models := reg.GetLatestModels(domain.ModelTypeEmbedding, 10)
	require.Len(t, models, 1)
	assert.Contains(t, models[0].ModelID, "embedding-")
	assert.Equal(t, StateIdle, p.state(domain.ModelTypeEmbedding))

	def, ok := reg.GetDefaultModel(domain.ModelTypeEmbedding)
	require.True(t, ok, "single-variant run should promote directly")
	assert.Equal(t, models[0].ModelID, def.ModelID)
}

func TestPipeline_RunFineTuning_OpensABTestAgainstExistingDefault(t *testing.T) {
	p, reg, fb := newTestPipeline(t)
	seedFeedback(t, fb, 5, 1)

	require.NoError(t, reg.RegisterModel("embedding-seed", domain.ModelTypeEmbedding, "/m/seed", nil))
	require.NoError(t, reg.SetDefaultModel(domain.ModelTypeEmbedding, "embedding-seed"))

	require.NoError(t, p.RunFineTuning(context.Background(), domain.ModelTypeEmbedding))

	models := reg.GetLatestModels(domain.ModelTypeEmbedding, 10)
	require.Len(t, models, 2)

	var newModelID string
	for _, m := range models {
		if m.ModelID != "embedding-seed" {
			newModelID = m.ModelID
		}
	}
	require.NotEmpty(t, newModelID)

	def, ok := reg.GetDefaultModel(domain.ModelTypeEmbedding)
	require.True(t, ok)
	assert.Equal(t, "embedding-seed", def.ModelID, "default stays put until the ab test concludes")
}

func TestPipeline_RunFineTuning_RejectsConcurrentRun(t *testing.T) {
	p, _, fb := newTestPipeline(t)
	seedFeedback(t, fb, 5, 1)

	p.setState(domain.ModelTypeEmbedding, StateFineTuning)
	err := p.RunFineTuning(context.Background(), domain.ModelTypeEmbedding)
	assert.Error(t, err)
}

func TestPipeline_CheckABTestCompletions_InsufficientSamplesKeepsDefault(t *testing.T) {
	p, reg, _ := newTestPipeline(t)

	require.NoError(t, reg.RegisterModel("e1", domain.ModelTypeEmbedding, "/m/e1", nil))
	require.NoError(t, reg.RegisterModel("e2", domain.ModelTypeEmbedding, "/m/e2", nil))
	require.NoError(t, reg.SetDefaultModel(domain.ModelTypeEmbedding, "e1"))

	test, err := reg.RegisterABTest(domain.ABTestConfig{
		ModelType:     domain.ModelTypeEmbedding,
		Variants:      []string{"e1", "e2"},
		TrafficSplit:  map[string]float64{"e1": 0.5, "e2": 0.5},
		DurationDays:  0,
		PrimaryMetric: "accuracy",
	})
	require.NoError(t, err)
	require.NoError(t, reg.UpdateABTestResults(test.ID, domain.ABTestRunning, nil, ""))

	test.Status = domain.ABTestRunning
	test.EndDate = time.Now().UTC().Add(-time.Minute)

	require.NoError(t, p.CheckABTestCompletions(context.Background(), test))

	concluded, ok := reg.GetABTest(test.ID)
	require.True(t, ok)
	assert.Equal(t, domain.ABTestConcluded, concluded.Status)
	assert.Empty(t, concluded.Winner)

	def, ok := reg.GetDefaultModel(domain.ModelTypeEmbedding)
	require.True(t, ok)
	assert.Equal(t, "e1", def.ModelID)
}

func TestPipeline_CheckABTestCompletions_PromotesHigherScoringVariant(t *testing.T) {
	p, reg, fb := newTestPipeline(t)

	require.NoError(t, reg.RegisterModel("e1", domain.ModelTypeEmbedding, "/m/e1", nil))
	require.NoError(t, reg.RegisterModel("e2", domain.ModelTypeEmbedding, "/m/e2", nil))
	require.NoError(t, reg.SetDefaultModel(domain.ModelTypeEmbedding, "e1"))
	require.NoError(t, reg.UpdateModelPerformance("e1", map[string]float64{"accuracy": 0.5}))
	require.NoError(t, reg.UpdateModelPerformance("e2", map[string]float64{"accuracy": 0.9}))

	test, err := reg.RegisterABTest(domain.ABTestConfig{
		ModelType:     domain.ModelTypeEmbedding,
		Variants:      []string{"e1", "e2"},
		TrafficSplit:  map[string]float64{"e1": 0.5, "e2": 0.5},
		DurationDays:  0,
		PrimaryMetric: "accuracy",
	})
	require.NoError(t, err)
	require.NoError(t, reg.UpdateABTestResults(test.ID, domain.ABTestRunning, nil, ""))

	seedFeedback(t, fb, 5, 4)

	test.Status = domain.ABTestRunning
	test.EndDate = time.Now().UTC().Add(-time.Minute)

	require.NoError(t, p.CheckABTestCompletions(context.Background(), test))

	concluded, ok := reg.GetABTest(test.ID)
	require.True(t, ok)
	assert.Equal(t, "e2", concluded.Winner)

	def, ok := reg.GetDefaultModel(domain.ModelTypeEmbedding)
	require.True(t, ok)
	assert.Equal(t, "e2", def.ModelID)
}

func TestPipeline_LaunchFineTuning_RunsDetached(t *testing.T) {
	p, _, fb := newTestPipeline(t)
	seedFeedback(t, fb, 5, 1)

	future, err := p.LaunchFineTuning(context.Background(), domain.ModelTypeEmbedding)
	require.NoError(t, err)

	_, runErr := future.GetWithTimeout(5 * time.Second)
	require.NoError(t, runErr)
}
