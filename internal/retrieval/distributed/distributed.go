// Package distributed implements the distributed retriever: fan-out across
// a pool of vector stores with caching, bounded concurrency, per-store
// circuit breaking, and deterministic result assembly.
package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Basilakis/kai-sub004/internal/cache"
	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/vectorstore"
	"github.com/Basilakis/kai-sub004/pkg/syncutil"
)

// Strategy selects how a Retrieve call fans out across stores.
type Strategy string

const (
	StrategyParallel     Strategy = "parallel"
	StrategyLoadBalanced Strategy = "load_balanced"
)

// RetrieveOptions carries the per-call knobs, including fields excluded
// from the cache key.
type RetrieveOptions struct {
	Strategy Strategy
	TopK     int
	UserID   string
	Extra    map[string]any
}

func (o RetrieveOptions) toMap() map[string]any {
	m := map[string]any{"strategy": string(o.Strategy), "top_k": o.TopK}
	for k, v := range o.Extra {
		m[k] = v
	}
	return m
}

// StatsSnapshot is the point-in-time view GetStats returns.
type StatsSnapshot struct {
	Stores map[string]domain.StoreStats
	Cache  cache.Stats
}

// Retriever executes retrieval against a pool of vector stores.
type Retriever struct {
	stores  []vectorstore.Store
	cache   cache.Cache
	cfg     config.DistributedRetrievalConfig
	logger  *zap.Logger
	limiter *syncutil.Limiter

	mu        sync.Mutex
	stats     map[string]*domain.StoreStats
	breakers  map[string]*gobreaker.CircuitBreaker
	rrCounter int
}

// New builds a Retriever over stores.
func New(stores []vectorstore.Store, cacheImpl cache.Cache, cfg config.DistributedRetrievalConfig, logger *zap.Logger) *Retriever {
	r := &Retriever{
		stores:   stores,
		cache:    cacheImpl,
		cfg:      cfg,
		logger:   logger,
		limiter:  syncutil.NewLimiter(cfg.MaxConcurrentRequests),
		stats:    make(map[string]*domain.StoreStats),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, s := range stores {
		r.stats[s.ID()] = &domain.StoreStats{}
		r.breakers[s.ID()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "vectorstore." + s.ID()})
	}
	return r
}

// Retrieve executes query against the configured strategy, consulting the
// cache first when enabled.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*domain.RetrievalResult, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyLoadBalanced
	}

	var cacheKey string
	if r.cfg.CacheEnabled && r.cache != nil {
		cacheKey = cache.Key(query, opts.toMap())
		if cached, ok, err := r.cache.Get(ctx, cacheKey); err == nil && ok {
			var result domain.RetrievalResult
			if err := json.Unmarshal(cached, &result); err == nil {
				return &result, nil
			}
		}
	}

	var result *domain.RetrievalResult
	var err error
	switch opts.Strategy {
	case StrategyParallel:
		result, err = r.retrieveParallel(ctx, query, opts)
	default:
		result, err = r.retrieveLoadBalanced(ctx, query, opts)
	}
	if err != nil {
		return nil, err
	}

	if r.cfg.CacheEnabled && r.cache != nil {
		if payload, merr := json.Marshal(result); merr == nil {
			_ = r.cache.Set(ctx, cacheKey, payload, r.cfg.CacheTTLSeconds)
		}
	}
	return result, nil
}

// retrieveParallel fans out to every store concurrently. Results are kept
// in a slice indexed by the store's position in r.stores so metadata.stores
// reflects input order regardless of completion order. A per-store failure
// (including a timeout) is captured in that store's metadata entry and
// never propagated through the errgroup, so one slow or broken store never
// cancels the others.
func (r *Retriever) retrieveParallel(ctx context.Context, query string, opts RetrieveOptions) (*domain.RetrievalResult, error) {
	results := make([][]domain.Material, len(r.stores))
	storeMeta := make([]map[string]any, len(r.stores))

	var g errgroup.Group
	g.SetLimit(len(r.stores))

	for i, store := range r.stores {
		i, store := i, store
		g.Go(func() error {
			materials, _, err := r.callStore(ctx, store, query, opts)
			if err != nil {
				storeMeta[i] = map[string]any{"store_id": store.ID(), "error": errorLabel(err)}
				return nil
			}
			results[i] = materials
			storeMeta[i] = map[string]any{"store_id": store.ID(), "count": len(materials)}
			return nil
		})
	}
	_ = g.Wait()

	var materials []domain.Material
	allFailed := len(r.stores) > 0
	for i, found := range results {
		materials = append(materials, found...)
		if _, failed := storeMeta[i]["error"]; !failed {
			allFailed = false
		}
	}
	if allFailed {
		return nil, domain.NewDependencyError("vectorstore", "all stores failed", nil)
	}

	deduped := dedupeKeepHighestScore(materials)
	sortByScoreDesc(deduped)

	return &domain.RetrievalResult{
		Materials: deduped,
		Metadata: map[string]any{
			"strategy": string(StrategyParallel),
			"stores":   storeMeta,
		},
	}, nil
}

func (r *Retriever) retrieveLoadBalanced(ctx context.Context, query string, opts RetrieveOptions) (*domain.RetrievalResult, error) {
	store, storeIdx := r.pickStore()
	materials, meta, err := r.callStore(ctx, store, query, opts)
	if err != nil {
		return nil, domain.NewDependencyError("vectorstore", fmt.Sprintf("store %s failed", store.ID()), err)
	}

	sortByScoreDesc(materials)
	metadata := map[string]any{
		"strategy":    string(StrategyLoadBalanced),
		"store_id":    store.ID(),
		"store_index": storeIdx,
	}
	for k, v := range meta {
		metadata[k] = v
	}

	return &domain.RetrievalResult{Materials: materials, Metadata: metadata}, nil
}

// pickStore selects the store minimizing avg_latency*(queries+1), falling
// back to round-robin when every store has zero recorded queries. Ties are
// broken by the lowest store index.
func (r *Retriever) pickStore() (vectorstore.Store, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allZero := true
	for _, s := range r.stores {
		if r.stats[s.ID()].Queries > 0 {
			allZero = false
			break
		}
	}
	if allZero {
		idx := r.rrCounter % len(r.stores)
		r.rrCounter++
		return r.stores[idx], idx
	}

	bestIdx := 0
	bestScore := -1.0
	for i, s := range r.stores {
		st := r.stats[s.ID()]
		score := st.AvgLatency() * float64(st.Queries+1)
		if bestScore < 0 || score < bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return r.stores[bestIdx], bestIdx
}

func (r *Retriever) callStore(ctx context.Context, store vectorstore.Store, query string, opts RetrieveOptions) ([]domain.Material, map[string]any, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	r.limiter.Acquire()
	defer r.limiter.Release()

	breaker := r.breakerFor(store.ID())
	start := time.Now()

	out, err := breaker.Execute(func() (any, error) {
		materials, meta, err := store.Retrieve(timeoutCtx, query, opts.toMap())
		if err != nil {
			return nil, err
		}
		for i := range materials {
			materials[i].StoreID = store.ID()
		}
		return struct {
			materials []domain.Material
			meta      map[string]any
		}{materials, meta}, nil
	})

	latency := time.Since(start).Seconds()
	r.recordStat(store.ID(), latency)

	if err != nil {
		r.logger.Warn("store call failed", zap.String("store_id", store.ID()), zap.Error(err))
		return nil, nil, err
	}

	wrapped := out.(struct {
		materials []domain.Material
		meta      map[string]any
	})
	return wrapped.materials, wrapped.meta, nil
}

// errorLabel reports a store failure the way metadata.stores[*].error
// expects it: a deadline exceeded on the per-call timeout context reads as
// "Timeout" rather than the raw context error text.
func errorLabel(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	return err.Error()
}

func (r *Retriever) breakerFor(storeID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[storeID]
}

func (r *Retriever) recordStat(storeID string, latencySeconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stats[storeID]
	st.Queries++
	st.LatencyTotal += latencySeconds
}

// InvalidateCache clears cache entries; see cache.Cache.Invalidate for the
// pattern semantics.
func (r *Retriever) InvalidateCache(ctx context.Context, pattern string) (int, error) {
	if r.cache == nil {
		return 0, nil
	}
	n, err := r.cache.Invalidate(ctx, pattern)
	if err != nil {
		return 0, domain.NewDependencyError("cache", "invalidate", err)
	}
	return n, nil
}

// GetStats returns a snapshot of per-store and cache counters.
func (r *Retriever) GetStats() StatsSnapshot {
	r.mu.Lock()
	stores := make(map[string]domain.StoreStats, len(r.stats))
	for id, st := range r.stats {
		stores[id] = *st
	}
	r.mu.Unlock()

	snapshot := StatsSnapshot{Stores: stores}
	if r.cache != nil {
		snapshot.Cache = r.cache.Stats()
	}
	return snapshot
}

func dedupeKeepHighestScore(materials []domain.Material) []domain.Material {
	best := make(map[string]domain.Material, len(materials))
	order := make([]string, 0, len(materials))
	for _, m := range materials {
		existing, ok := best[m.ID]
		if !ok {
			order = append(order, m.ID)
			best[m.ID] = m
			continue
		}
		if m.Score > existing.Score {
			best[m.ID] = m
		}
	}
	out := make([]domain.Material, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

func sortByScoreDesc(materials []domain.Material) {
	sort.SliceStable(materials, func(i, j int) bool {
		return materials[i].Score > materials[j].Score
	})
}
