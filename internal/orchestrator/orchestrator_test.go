package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	fakeembed "github.com/Basilakis/kai-sub004/internal/embedding/fake"
	"github.com/Basilakis/kai-sub004/internal/feedback"
	"github.com/Basilakis/kai-sub004/internal/fusion"
	"github.com/Basilakis/kai-sub004/internal/registry"
	"github.com/Basilakis/kai-sub004/internal/retrieval/distributed"
	"github.com/Basilakis/kai-sub004/internal/retrieval/hierarchical"
	"github.com/Basilakis/kai-sub004/internal/vectorstore"
	fakestore "github.com/Basilakis/kai-sub004/internal/vectorstore/fake"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakestore.Store, feedback.Store) {
	t.Helper()
	store := &fakestore.Store{StoreID: "a", Materials: []domain.Material{{ID: "m1", Score: 0.5, Name: "oak plank"}}}
	dist := distributed.New([]vectorstore.Store{store}, nil, config.DistributedRetrievalConfig{TimeoutSeconds: 1, MaxConcurrentRequests: 4}, zap.NewNop())
	hier := hierarchical.New(dist, nil, config.HierarchicalRetrieverConfig{MaxSubQueries: 3, MinQueryLength: 15})
	fuse := fusion.New(&fakeembed.Vision{}, nil, config.CrossModalConfig{})

	fb, err := feedback.NewFileStore(t.TempDir() + "/feedback.jsonl")
	require.NoError(t, err)

	regStore, err := registry.NewFileStore(t.TempDir())
	require.NoError(t, err)
	reg := registry.New(regStore, zap.NewNop())

	orch := New(hier, dist, fuse, fb, reg, nil, zap.NewNop())
	return orch, store, fb
}

func TestOrchestrator_Query_TextOnly(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	query := "oak flooring"

	resp, err := orch.Query(context.Background(), QueryRequest{TextQuery: &query})
	require.NoError(t, err)
	assert.Len(t, resp.Materials, 1)
	assert.Nil(t, resp.CrossModal)

	stats := orch.GetSystemStats()
	assert.Equal(t, int64(1), stats.Routing.TextOnly)
}

func TestOrchestrator_Query_ImageOnly(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)

	resp, err := orch.Query(context.Background(), QueryRequest{ImageData: []byte("fake-bytes")})
	require.NoError(t, err)
	require.NotNil(t, resp.CrossModal)
	assert.NotNil(t, resp.CrossModal.GeneratedTextQuery)
	assert.NotNil(t, resp.CrossModal.VisualContext)

	stats := orch.GetSystemStats()
	assert.Equal(t, int64(1), stats.Routing.ImageOnly)
}

func TestOrchestrator_Query_TextAndImage(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	query := "what flooring is this"

	resp, err := orch.Query(context.Background(), QueryRequest{TextQuery: &query, ImageData: []byte("fake-bytes")})
	require.NoError(t, err)
	require.NotNil(t, resp.CrossModal)
	assert.NotNil(t, resp.CrossModal.EnhancedQuery)

	stats := orch.GetSystemStats()
	assert.Equal(t, int64(1), stats.Routing.TextAndImage)
}

func TestOrchestrator_Query_NoInputIsInputError(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)

	_, err := orch.Query(context.Background(), QueryRequest{})
	assert.Error(t, err)
}

func TestOrchestrator_SubmitFeedback_PersistsRecord(t *testing.T) {
	orch, _, fb := newTestOrchestrator(t)

	err := orch.SubmitFeedback(context.Background(), domain.ModelTypeGenerative, "oak flooring", "oak is durable", domain.Feedback{Rating: 4})
	require.NoError(t, err)

	count, err := fb.GetFeedbackCount(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
