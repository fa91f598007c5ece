// Package vectorstore defines the vector store collaborator contract
// consumed by the distributed retriever. Concrete backends live in
// sibling packages (qdrant, fake).
package vectorstore

import (
	"context"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Store is one backing vector store. Retrieve returns materials ranked by
// relevance plus backend-specific metadata (e.g. collection name, search
// latency) the caller may attach to its own response metadata.
type Store interface {
	ID() string
	Retrieve(ctx context.Context, query string, opts map[string]any) ([]domain.Material, map[string]any, error)
}
