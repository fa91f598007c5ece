package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "registry"))
	require.NoError(t, err)
	return New(store, zap.NewNop())
}

func TestRegistry_RegisterModel(t *testing.T) {
	tests := []struct {
		name      string
		seed      []string
		modelID   string
		wantErr   bool
	}{
		{name: "new model", modelID: "embed-v1", wantErr: false},
		{name: "duplicate model", seed: []string{"embed-v1"}, modelID: "embed-v1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			for _, id := range tt.seed {
				require.NoError(t, r.RegisterModel(id, domain.ModelTypeEmbedding, "/models/"+id, nil))
			}

			err := r.RegisterModel(tt.modelID, domain.ModelTypeEmbedding, "/models/"+tt.modelID, map[string]any{"note": "test"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			entry, ok := r.GetModel(tt.modelID)
			require.True(t, ok)
			assert.Equal(t, tt.modelID, entry.ModelID)
			assert.Equal(t, domain.ModelTypeEmbedding, entry.ModelType)
			assert.Equal(t, "test", entry.Metadata["note"])
			assert.False(t, entry.Performance.LastUpdated.Before(entry.RegisteredAt))
		})
	}
}

func TestRegistry_GetModel_Missing(t *testing.T) {
	r := newTestRegistry(t)
	_, ok := r.GetModel("does-not-exist")
	assert.False(t, ok)
}

func TestRegistry_GetLatestModels_OrderedDescending(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterModel("e1", domain.ModelTypeEmbedding, "/m/e1", nil))
	require.NoError(t, r.RegisterModel("e2", domain.ModelTypeEmbedding, "/m/e2", nil))
	require.NoError(t, r.RegisterModel("e3", domain.ModelTypeEmbedding, "/m/e3", nil))
	require.NoError(t, r.RegisterModel("v1", domain.ModelTypeVision, "/m/v1", nil))

	latest := r.GetLatestModels(domain.ModelTypeEmbedding, 2)
	require.Len(t, latest, 2)
	assert.Equal(t, "e3", latest[0].ModelID)
	assert.Equal(t, "e2", latest[1].ModelID)
}

func TestRegistry_UpdateModelPerformance_MergeSemantics(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterModel("e1", domain.ModelTypeEmbedding, "/m/e1", nil))

	require.NoError(t, r.UpdateModelPerformance("e1", map[string]float64{"accuracy": 0.8, "latency_ms": 120}))
	require.NoError(t, r.UpdateModelPerformance("e1", map[string]float64{"accuracy": 0.9, "recall": 0.75}))

	entry, ok := r.GetModel("e1")
	require.True(t, ok)
	assert.Equal(t, 0.9, entry.Performance.Metrics["accuracy"])
	assert.Equal(t, 120.0, entry.Performance.Metrics["latency_ms"])
	assert.Equal(t, 0.75, entry.Performance.Metrics["recall"])
}

func TestRegistry_UpdateModelPerformance_MissingModel(t *testing.T) {
	r := newTestRegistry(t)
	err := r.UpdateModelPerformance("nope", map[string]float64{"accuracy": 1})
	assert.Error(t, err)
}

func TestRegistry_RegisterABTest(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterModel("e1", domain.ModelTypeEmbedding, "/m/e1", nil))
	require.NoError(t, r.RegisterModel("e2", domain.ModelTypeEmbedding, "/m/e2", nil))

	tests := []struct {
		name    string
		cfg     domain.ABTestConfig
		wantErr bool
	}{
		{
			name: "valid two variants",
			cfg: domain.ABTestConfig{
				ModelType:     domain.ModelTypeEmbedding,
				Variants:      []string{"e1", "e2"},
				TrafficSplit:  map[string]float64{"e1": 0.5, "e2": 0.5},
				DurationDays:  1,
				PrimaryMetric: "accuracy",
			},
			wantErr: false,
		},
		{
			name: "single variant rejected",
			cfg: domain.ABTestConfig{
				ModelType:    domain.ModelTypeEmbedding,
				Variants:     []string{"e1"},
				TrafficSplit: map[string]float64{"e1": 1.0},
			},
			wantErr: true,
		},
		{
			name: "unknown variant rejected",
			cfg: domain.ABTestConfig{
				ModelType:    domain.ModelTypeEmbedding,
				Variants:     []string{"e1", "ghost"},
				TrafficSplit: map[string]float64{"e1": 0.5, "ghost": 0.5},
			},
			wantErr: true,
		},
		{
			name: "traffic split must sum to one",
			cfg: domain.ABTestConfig{
				ModelType:    domain.ModelTypeEmbedding,
				Variants:     []string{"e1", "e2"},
				TrafficSplit: map[string]float64{"e1": 0.5, "e2": 0.3},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test, err := r.RegisterABTest(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, test.ID)
			assert.Equal(t, domain.ABTestPlanned, test.Status)
			assert.True(t, test.EndDate.After(test.StartDate))
		})
	}
}

func TestRegistry_UpdateABTestResults_ForwardOnlyTransition(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterModel("e1", domain.ModelTypeEmbedding, "/m/e1", nil))
	require.NoError(t, r.RegisterModel("e2", domain.ModelTypeEmbedding, "/m/e2", nil))

	test, err := r.RegisterABTest(domain.ABTestConfig{
		ModelType:    domain.ModelTypeEmbedding,
		Variants:     []string{"e1", "e2"},
		TrafficSplit: map[string]float64{"e1": 0.5, "e2": 0.5},
		DurationDays: 1,
	})
	require.NoError(t, err)

	require.NoError(t, r.UpdateABTestResults(test.ID, domain.ABTestRunning, nil, ""))
	require.NoError(t, r.UpdateABTestResults(test.ID, domain.ABTestConcluded, map[string]domain.VariantMetrics{
		"e2": {Metrics: map[string]float64{"accuracy": 0.95}, SampleSize: 50},
	}, "e2"))

	err = r.UpdateABTestResults(test.ID, domain.ABTestPlanned, nil, "")
	assert.Error(t, err, "must not transition backward")

	err = r.UpdateABTestResults(test.ID, domain.ABTestAborted, nil, "")
	assert.Error(t, err, "must not transition out of a terminal state")
}

func TestRegistry_SetDefaultModel(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterModel("e1", domain.ModelTypeEmbedding, "/m/e1", nil))
	require.NoError(t, r.RegisterModel("v1", domain.ModelTypeVision, "/m/v1", nil))

	require.NoError(t, r.SetDefaultModel(domain.ModelTypeEmbedding, "e1"))

	def, ok := r.GetDefaultModel(domain.ModelTypeEmbedding)
	require.True(t, ok)
	assert.Equal(t, "e1", def.ModelID)

	err := r.SetDefaultModel(domain.ModelTypeVision, "e1")
	assert.Error(t, err, "type mismatch must be rejected")

	err = r.SetDefaultModel(domain.ModelTypeEmbedding, "ghost")
	assert.Error(t, err, "missing model must be rejected")
}

func TestRegistry_GetDefaultModel_Unset(t *testing.T) {
	r := newTestRegistry(t)
	_, ok := r.GetDefaultModel(domain.ModelTypeEmbedding)
	assert.False(t, ok)
}
