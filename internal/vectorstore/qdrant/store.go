// Package qdrant adapts a qdrant.Client collection to the vectorstore.Store
// contract.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/embedding"
)

// Store queries a single Qdrant collection. The embedder converts the raw
// query text into the vector Qdrant searches against.
type Store struct {
	id             string
	client         *qdrant.Client
	collectionName string
	embedder       embedding.TextModel
}

// New builds a Store backed by client, searching collectionName. id is the
// store identifier the distributed retriever uses for stats and breaker
// keys.
func New(id string, client *qdrant.Client, collectionName string, embedder embedding.TextModel) *Store {
	return &Store{id: id, client: client, collectionName: collectionName, embedder: embedder}
}

func (s *Store) ID() string { return s.id }

func (s *Store) Retrieve(ctx context.Context, query string, opts map[string]any) ([]domain.Material, map[string]any, error) {
	vector, err := s.embedder.ExtractFeatures(ctx, query)
	if err != nil {
		return nil, nil, domain.NewDependencyError(s.id, "embed query text", err)
	}
	queryVector := make([]float32, len(vector))
	for i, v := range vector {
		queryVector[i] = float32(v)
	}

	limit := uint64(10)
	if n, ok := opts["top_k"].(int); ok && n > 0 {
		limit = uint64(n)
	}

	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, nil, domain.NewDependencyError(s.id, "query collection", err)
	}

	materials := make([]domain.Material, 0, len(scored))
	for _, point := range scored {
		materials = append(materials, pointToMaterial(s.id, point))
	}
	metadata := map[string]any{"collection": s.collectionName, "result_count": len(materials)}
	return materials, metadata, nil
}

func pointToMaterial(storeID string, point *qdrant.ScoredPoint) domain.Material {
	m := domain.Material{
		Score:      float64(point.GetScore()),
		StoreID:    storeID,
		Properties: map[string]any{},
	}
	if id := point.GetId(); id != nil {
		m.ID = id.GetUuid()
		if m.ID == "" {
			m.ID = fmt.Sprintf("%d", id.GetNum())
		}
	}
	for key, value := range point.GetPayload() {
		switch key {
		case "name":
			m.Name = value.GetStringValue()
		case "description":
			m.Description = value.GetStringValue()
		case "material_type":
			m.MaterialType = value.GetStringValue()
		default:
			m.Properties[key] = qdrantValueToAny(value)
		}
	}
	return m
}

func qdrantValueToAny(v *qdrant.Value) any {
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
