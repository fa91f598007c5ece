package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	fakeembed "github.com/Basilakis/kai-sub004/internal/embedding/fake"
	"github.com/Basilakis/kai-sub004/internal/feedback"
	"github.com/Basilakis/kai-sub004/internal/fusion"
	"github.com/Basilakis/kai-sub004/internal/orchestrator"
	"github.com/Basilakis/kai-sub004/internal/registry"
	"github.com/Basilakis/kai-sub004/internal/retrieval/distributed"
	"github.com/Basilakis/kai-sub004/internal/retrieval/hierarchical"
	"github.com/Basilakis/kai-sub004/internal/vectorstore"
	fakestore "github.com/Basilakis/kai-sub004/internal/vectorstore/fake"
)

func newTestBridge(t *testing.T) *Bridge {
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

	orch := orchestrator.New(hier, dist, fuse, fb, reg, nil, zap.NewNop())
	return New(orch)
}

func TestBridge_Query_Success(t *testing.T) {
	b := newTestBridge(t)
	req := []byte(`{"textQuery": "oak flooring"}`)

	out := b.HandleRequest(context.Background(), RequestQuery, req)
	result := gjson.ParseBytes(out)
	assert.Equal(t, "success", result.Get("status").String())
	assert.True(t, result.Get("materials").IsArray())
}

func TestBridge_Feedback_Success(t *testing.T) {
	b := newTestBridge(t)
	req := []byte(`{"query": "oak flooring", "response": "oak is durable", "feedback": {"rating": 4}}`)

	out := b.HandleRequest(context.Background(), RequestFeedback, req)
	result := gjson.ParseBytes(out)
	assert.Equal(t, "success", result.Get("status").String())
	assert.True(t, result.Get("success").Bool())
}

func TestBridge_Stats_Success(t *testing.T) {
	b := newTestBridge(t)

	out := b.HandleRequest(context.Background(), RequestStats, []byte(`{}`))
	result := gjson.ParseBytes(out)
	assert.Equal(t, "success", result.Get("status").String())
	assert.True(t, result.Get("stats").Exists())
}

func TestBridge_UnknownRequestType_ReturnsError(t *testing.T) {
	b := newTestBridge(t)

	out := b.HandleRequest(context.Background(), RequestType("bogus"), []byte(`{}`))
	result := gjson.ParseBytes(out)
	assert.Equal(t, "error", result.Get("status").String())
	assert.NotEmpty(t, result.Get("error").String())
}

func TestBridge_NotInitialized_ReturnsError(t *testing.T) {
	b := New(nil)

	out := b.HandleRequest(context.Background(), RequestQuery, []byte(`{"textQuery": "oak"}`))
	result := gjson.ParseBytes(out)
	assert.Equal(t, "error", result.Get("status").String())
	assert.Contains(t, result.Get("error").String(), "not initialized")
}

func TestBridge_Query_NoInput_ReturnsError(t *testing.T) {
	b := newTestBridge(t)

	out := b.HandleRequest(context.Background(), RequestQuery, []byte(`{}`))
	result := gjson.ParseBytes(out)
	assert.Equal(t, "error", result.Get("status").String())
}
