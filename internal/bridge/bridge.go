// Package bridge implements the MCP bridge: a stateless request dispatcher
// that decodes loosely-typed JSON payloads, routes them to the
// orchestrator, and re-encodes a uniform response envelope.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/orchestrator"
	"github.com/Basilakis/kai-sub004/internal/retrieval/distributed"
	"github.com/Basilakis/kai-sub004/pkg/safe"
)

// RequestType identifies what HandleRequest should dispatch to.
type RequestType string

const (
	RequestQuery    RequestType = "query"
	RequestFeedback RequestType = "feedback"
	RequestStats    RequestType = "stats"
)

// Bridge dispatches decoded JSON requests to an Orchestrator.
type Bridge struct {
	orch        *orchestrator.Orchestrator
	initialized bool
}

// New builds a Bridge over orch. orch is required for the bridge to be
// considered initialized; a nil orch yields a Bridge whose handlers all
// report the "not initialized" state error.
func New(orch *orchestrator.Orchestrator) *Bridge {
	return &Bridge{orch: orch, initialized: orch != nil}
}

// HandleRequest decodes data as JSON into a loosely-typed payload,
// dispatches by reqType, and returns the JSON-encoded response envelope.
// A panic anywhere in the dispatch is recovered and reported as an error
// response rather than propagated to the caller.
func (b *Bridge) HandleRequest(ctx context.Context, reqType RequestType, data []byte) []byte {
	var out []byte
	safe.WithRecover(func() {
		out = b.dispatch(ctx, reqType, data)
	}, func(err error) {
		out = errorEnvelope(err.Error())
	})()
	return out
}

func (b *Bridge) dispatch(ctx context.Context, reqType RequestType, data []byte) []byte {
	if !b.initialized {
		return errorEnvelope("bridge not initialized")
	}

	switch reqType {
	case RequestQuery:
		return b.handleQuery(ctx, data)
	case RequestFeedback:
		return b.handleFeedback(ctx, data)
	case RequestStats:
		return b.handleStats()
	default:
		return errorEnvelope(fmt.Sprintf("unknown request type %q", reqType))
	}
}

func (b *Bridge) handleQuery(ctx context.Context, data []byte) []byte {
	payload := gjson.ParseBytes(data)

	var textQuery *string
	if tq := payload.Get("textQuery"); tq.Exists() && tq.String() != "" {
		v := tq.String()
		textQuery = &v
	}

	var imageData []byte
	if img := payload.Get("imageData"); img.Exists() {
		imageData = []byte(img.String())
	}

	opts := distributed.RetrieveOptions{}
	if strategy := payload.Get("options.strategy"); strategy.Exists() {
		opts.Strategy = distributed.Strategy(strategy.String())
	}
	if topK := payload.Get("options.top_k"); topK.Exists() {
		opts.TopK = cast.ToInt(topK.Value())
	}
	if userID := payload.Get("options.user_id"); userID.Exists() {
		opts.UserID = userID.String()
	}

	resp, err := b.orch.Query(ctx, orchestrator.QueryRequest{TextQuery: textQuery, ImageData: imageData, Options: opts})
	if err != nil {
		return errorEnvelope(err.Error())
	}

	envelope, _ := sjson.SetBytes([]byte(`{}`), "status", "success")
	envelope, _ = sjson.SetBytes(envelope, "materials", resp.Materials)
	envelope, _ = sjson.SetBytes(envelope, "metadata", resp.Metadata)
	if resp.CrossModal != nil {
		envelope, _ = sjson.SetBytes(envelope, "cross_modal", resp.CrossModal)
	}
	return envelope
}

func (b *Bridge) handleFeedback(ctx context.Context, data []byte) []byte {
	payload := gjson.ParseBytes(data)

	query := payload.Get("query").String()
	response := payload.Get("response").String()
	rating := cast.ToInt(payload.Get("feedback.rating").Value())

	fb := domain.Feedback{Rating: rating, FeedbackText: payload.Get("feedback.feedback_text").String()}
	if aspects := payload.Get("feedback.aspect_scores"); aspects.IsObject() {
		fb.AspectScores = map[string]int{}
		aspects.ForEach(func(key, value gjson.Result) bool {
			fb.AspectScores[key.String()] = cast.ToInt(value.Value())
			return true
		})
	}

	modelType := domain.ModelType(payload.Get("model_type").String())
	if modelType == "" {
		modelType = domain.ModelTypeGenerative
	}

	if err := b.orch.SubmitFeedback(ctx, modelType, query, response, fb); err != nil {
		envelope, _ := sjson.SetBytes([]byte(`{}`), "status", "error")
		envelope, _ = sjson.SetBytes(envelope, "error", err.Error())
		envelope, _ = sjson.SetBytes(envelope, "success", false)
		return envelope
	}

	envelope, _ := sjson.SetBytes([]byte(`{}`), "status", "success")
	envelope, _ = sjson.SetBytes(envelope, "success", true)
	return envelope
}

func (b *Bridge) handleStats() []byte {
	stats := b.orch.GetSystemStats()
	payload, err := json.Marshal(stats)
	if err != nil {
		return errorEnvelope(err.Error())
	}
	envelope, _ := sjson.SetRawBytes([]byte(`{}`), "stats", payload)
	envelope, _ = sjson.SetBytes(envelope, "status", "success")
	return envelope
}

func errorEnvelope(msg string) []byte {
	envelope, _ := sjson.SetBytes([]byte(`{}`), "status", "error")
	envelope, _ = sjson.SetBytes(envelope, "error", msg)
	return envelope
}
