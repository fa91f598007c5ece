// Package fake provides a deterministic vectorstore.Store test double.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Store is a programmable vectorstore.Store double. Materials is returned
// verbatim (cloned) on every call unless RetrieveFunc is set. Latency, if
// set, is slept before returning, letting tests exercise timeout and
// load_balanced scoring paths.
type Store struct {
	StoreID      string
	Materials    []domain.Material
	Latency      time.Duration
	Err          error
	RetrieveFunc func(ctx context.Context, query string, opts map[string]any) ([]domain.Material, map[string]any, error)

	mu    sync.Mutex
	Calls int
}

func (s *Store) ID() string { return s.StoreID }

func (s *Store) Retrieve(ctx context.Context, query string, opts map[string]any) ([]domain.Material, map[string]any, error) {
	s.mu.Lock()
	s.Calls++
	s.mu.Unlock()

	if s.RetrieveFunc != nil {
		return s.RetrieveFunc(ctx, query, opts)
	}

	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, nil, s.Err
	}

	out := make([]domain.Material, len(s.Materials))
	for i, m := range s.Materials {
		out[i] = m.Clone()
	}
	return out, map[string]any{"store_id": s.StoreID}, nil
}
