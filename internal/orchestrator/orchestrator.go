// Package orchestrator wires the hierarchical retriever, cross-modal
// fusion, feedback store and learning pipeline into a single
// request/response surface: the enhanced RAG orchestrator.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/feedback"
	"github.com/Basilakis/kai-sub004/internal/fusion"
	"github.com/Basilakis/kai-sub004/internal/learning"
	"github.com/Basilakis/kai-sub004/internal/registry"
	"github.com/Basilakis/kai-sub004/internal/retrieval/distributed"
	"github.com/Basilakis/kai-sub004/internal/retrieval/hierarchical"
)

// QueryRequest is one multi-modal query.
type QueryRequest struct {
	TextQuery *string
	ImageData []byte
	Options   distributed.RetrieveOptions
}

// QueryResponse is the assembled answer: a retrieval result plus, when the
// request touched the image modality, a cross_modal section.
type QueryResponse struct {
	Materials  []domain.Material    `json:"materials"`
	Metadata   map[string]any       `json:"metadata"`
	CrossModal *domain.FusionResult `json:"cross_modal,omitempty"`
}

// RoutingCounters tallies requests by the modality path taken.
type RoutingCounters struct {
	TextOnly     int64
	ImageOnly    int64
	TextAndImage int64
}

// SystemStats is the union GetSystemStats returns.
type SystemStats struct {
	Retrieval     distributed.StatsSnapshot
	DefaultModels map[domain.ModelType]string
	Routing       RoutingCounters
}

// Orchestrator routes requests by modality, assembles responses, and fans
// feedback out to the feedback store and learning pipeline.
type Orchestrator struct {
	hierarchical *hierarchical.Retriever
	distributed  *distributed.Retriever
	fusion       *fusion.Fusion
	feedback     feedback.Store
	registry     *registry.Registry
	pipeline     *learning.Pipeline
	logger       *zap.Logger

	routingTextOnly     atomic.Int64
	routingImageOnly    atomic.Int64
	routingTextAndImage atomic.Int64
}

// New builds an Orchestrator. pipeline may be nil to disable fine-tune
// launches from SubmitFeedback.
func New(hier *hierarchical.Retriever, dist *distributed.Retriever, fuse *fusion.Fusion, fb feedback.Store, reg *registry.Registry, pipeline *learning.Pipeline, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		hierarchical: hier,
		distributed:  dist,
		fusion:       fuse,
		feedback:     fb,
		registry:     reg,
		pipeline:     pipeline,
		logger:       logger,
	}
}

// Query routes req by modality and assembles a QueryResponse.
//
// text only       -> hierarchical retrieval over the original query.
// image only      -> cross-modal synthesis of a text query, then retrieval.
// text and image  -> cross-modal enhancement of the text query, then
// retrieval with visual_context merged into options.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	hasText := req.TextQuery != nil && *req.TextQuery != ""
	hasImage := len(req.ImageData) > 0

	if !hasText && !hasImage {
		return nil, domain.NewInputError("query requires at least one of text or image", nil)
	}

	switch {
	case hasText && !hasImage:
		o.routingTextOnly.Add(1)
		return o.retrieveText(ctx, *req.TextQuery, req.Options, nil)
	case hasImage && !hasText:
		o.routingImageOnly.Add(1)
		return o.queryViaFusion(ctx, nil, req.ImageData, req.Options)
	default:
		o.routingTextAndImage.Add(1)
		return o.queryViaFusion(ctx, req.TextQuery, req.ImageData, req.Options)
	}
}

func (o *Orchestrator) queryViaFusion(ctx context.Context, textQuery *string, imageData []byte, opts distributed.RetrieveOptions) (*QueryResponse, error) {
	fused, err := o.fusion.ProcessMultiModalQuery(ctx, textQuery, imageData, fusion.Options{})
	if err != nil {
		return nil, err
	}

	query := ""
	switch {
	case fused.EnhancedQuery != nil:
		query = *fused.EnhancedQuery
	case fused.GeneratedTextQuery != nil:
		query = *fused.GeneratedTextQuery
	}

	enriched := opts
	if fused.VisualContext != nil {
		extra := make(map[string]any, len(opts.Extra)+1)
		for k, v := range opts.Extra {
			extra[k] = v
		}
		extra["visual_context"] = fused.VisualContext
		enriched.Extra = extra
	}

	return o.retrieveText(ctx, query, enriched, fused)
}

func (o *Orchestrator) retrieveText(ctx context.Context, query string, opts distributed.RetrieveOptions, crossModal *domain.FusionResult) (*QueryResponse, error) {
	retriever := o.retriever()
	result, err := retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return &QueryResponse{Materials: result.Materials, Metadata: result.Metadata, CrossModal: crossModal}, nil
}

func (o *Orchestrator) retriever() interface {
	Retrieve(ctx context.Context, query string, opts distributed.RetrieveOptions) (*domain.RetrievalResult, error)
} {
	if o.hierarchical != nil {
		return o.hierarchical
	}
	return o.distributed
}

// SubmitFeedback records the rating and, if fine-tuning triggers are met
// for the given model type, launches a detached fine-tune task.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, modelType domain.ModelType, query, response string, fb domain.Feedback) error {
	rec := domain.FeedbackRecord{Query: query, Response: response, Feedback: fb, Timestamp: time.Now().UTC()}
	if err := o.feedback.SubmitFeedback(ctx, rec); err != nil {
		return err
	}

	if o.pipeline == nil {
		return nil
	}
	if !o.pipeline.CheckFineTuningTriggers(ctx, modelType) {
		return nil
	}

	if _, err := o.pipeline.LaunchFineTuning(ctx, modelType); err != nil {
		o.logger.Warn("fine-tune launch failed", zap.String("model_type", string(modelType)), zap.Error(err))
	}
	return nil
}

// GetSystemStats returns the union of distributed-retrieval stats,
// default-model pointers, and request-routing counters.
func (o *Orchestrator) GetSystemStats() SystemStats {
	defaults := make(map[domain.ModelType]string)
	for _, mt := range []domain.ModelType{domain.ModelTypeEmbedding, domain.ModelTypeGenerative, domain.ModelTypeVision, domain.ModelTypeText} {
		if entry, ok := o.registry.GetDefaultModel(mt); ok {
			defaults[mt] = entry.ModelID
		}
	}

	return SystemStats{
		Retrieval:     o.distributed.GetStats(),
		DefaultModels: defaults,
		Routing: RoutingCounters{
			TextOnly:     o.routingTextOnly.Load(),
			ImageOnly:    o.routingImageOnly.Load(),
			TextAndImage: o.routingTextAndImage.Load(),
		},
	}
}
