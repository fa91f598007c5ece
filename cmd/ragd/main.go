// Command ragd is the RAG subsystem's process entrypoint: it loads
// configuration, wires the full dependency graph, and runs the
// continuous-learning background loop until an OS signal requests
// shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/panjf2000/ants/v2"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	conc "github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/bridge"
	"github.com/Basilakis/kai-sub004/internal/cache"
	"github.com/Basilakis/kai-sub004/internal/cache/memcache"
	"github.com/Basilakis/kai-sub004/internal/cache/rediscache"
	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/embedding/fake"
	"github.com/Basilakis/kai-sub004/internal/feedback"
	"github.com/Basilakis/kai-sub004/internal/fusion"
	"github.com/Basilakis/kai-sub004/internal/learning"
	"github.com/Basilakis/kai-sub004/internal/llm"
	"github.com/Basilakis/kai-sub004/internal/llm/anthropic"
	llmfake "github.com/Basilakis/kai-sub004/internal/llm/fake"
	"github.com/Basilakis/kai-sub004/internal/llm/openai"
	"github.com/Basilakis/kai-sub004/internal/logging"
	"github.com/Basilakis/kai-sub004/internal/orchestrator"
	"github.com/Basilakis/kai-sub004/internal/registry"
	"github.com/Basilakis/kai-sub004/internal/retrieval/distributed"
	"github.com/Basilakis/kai-sub004/internal/retrieval/hierarchical"
	"github.com/Basilakis/kai-sub004/internal/vectorstore"
	fakestore "github.com/Basilakis/kai-sub004/internal/vectorstore/fake"
	qdrantstore "github.com/Basilakis/kai-sub004/internal/vectorstore/qdrant"
	"github.com/Basilakis/kai-sub004/pkg/syncutil"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ragd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	regStore, err := registry.NewFileStore(cfg.Registry.RegistryDir)
	if err != nil {
		return fmt.Errorf("opening registry store: %w", err)
	}
	reg := registry.New(regStore, logging.Named(logger, "registry"))

	cacheImpl, err := newCache(cfg.DistributedRetrieval)
	if err != nil {
		return fmt.Errorf("building cache backend: %w", err)
	}

	llmClient := newLLMClient(cfg.LLM, logger)

	stores, err := newVectorStores(cfg.VectorStores)
	if err != nil {
		return fmt.Errorf("building vector stores: %w", err)
	}

	dist := distributed.New(stores, cacheImpl, cfg.DistributedRetrieval, logging.Named(logger, "distributed"))
	hier := hierarchical.New(dist, llmClient, cfg.HierarchicalRetriever)
	fuse := fusion.New(&fake.Vision{}, llmClient, cfg.CrossModal)

	feedbackStore, err := feedback.NewFileStore(filepath.Join(cfg.DataDir, "feedback.jsonl"))
	if err != nil {
		return fmt.Errorf("opening feedback store: %w", err)
	}

	pool := newFineTunePool(cfg.LearningPipeline.FineTunePoolBackend)
	pipeline := learning.New(cfg.LearningPipeline, reg, feedbackStore, &fake.Model{}, llmClient, pool, logging.Named(logger, "learning"))

	orch := orchestrator.New(hier, dist, fuse, feedbackStore, reg, pipeline, logging.Named(logger, "orchestrator"))
	// The bridge is exposed over whatever transport the host process wires
	// it to (stdio, unix socket, ...); constructing it here validates the
	// full dependency graph even before a transport is attached.
	_ = bridge.New(orch)

	logger.Info("ragd started",
		zap.Int("vector_stores", len(stores)),
		zap.String("cache_backend", cfg.DistributedRetrieval.CacheBackend),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	runLearningLoop(ctx, pipeline, reg, cfg.LearningPipeline, logging.Named(logger, "learning-loop"))
	logger.Info("ragd shutting down")
	return nil
}

// runLearningLoop polls fine-tuning triggers and open A/B test completions
// on a sub-10s ticker so shutdown latency stays bounded, while only
// running the actual (heavier) checks once per configured interval.
func runLearningLoop(ctx context.Context, pipeline *learning.Pipeline, reg *registry.Registry, cfg config.LearningPipelineConfig, logger *zap.Logger) {
	tickInterval := 10 * time.Second
	checkInterval := time.Duration(cfg.CheckIntervalMinutes * float64(time.Minute))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	lastCheck := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !lastCheck.IsZero() && now.Sub(lastCheck) < checkInterval {
				continue
			}
			lastCheck = now
			checkTriggers(ctx, pipeline, logger)
			checkABTests(ctx, pipeline, reg, logger)
		}
	}
}

func checkTriggers(ctx context.Context, pipeline *learning.Pipeline, logger *zap.Logger) {
	for _, mt := range []domain.ModelType{domain.ModelTypeEmbedding, domain.ModelTypeGenerative, domain.ModelTypeVision, domain.ModelTypeText} {
		if !pipeline.CheckFineTuningTriggers(ctx, mt) {
			continue
		}
		if _, err := pipeline.LaunchFineTuning(ctx, mt); err != nil {
			logger.Warn("fine-tune launch failed", zap.String("model_type", string(mt)), zap.Error(err))
		}
	}
}

func checkABTests(ctx context.Context, pipeline *learning.Pipeline, reg *registry.Registry, logger *zap.Logger) {
	for _, test := range reg.ListActiveABTests() {
		test := test
		if err := pipeline.CheckABTestCompletions(ctx, &test); err != nil {
			logger.Warn("ab test completion check failed", zap.String("id", test.ID), zap.Error(err))
		}
	}
}

func newCache(cfg config.DistributedRetrievalConfig) (cache.Cache, error) {
	if !cfg.CacheEnabled {
		return nil, nil
	}
	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return rediscache.New(client), nil
	default:
		return memcache.New(), nil
	}
}

// newLLMClient selects the configured LLM backend, falling back to the
// deterministic fake when a credentialed provider has no API key set so
// ragd still starts (degraded) without secrets configured.
func newLLMClient(cfg config.LLMConfig, logger *zap.Logger) llm.Client {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			logger.Warn("llm_provider openai set but no api key configured, falling back to fake client")
			return &llmfake.Client{}
		}
		return openai.New(cfg.APIKey)
	case "anthropic":
		if cfg.APIKey == "" {
			logger.Warn("llm_provider anthropic set but no api key configured, falling back to fake client")
			return &llmfake.Client{}
		}
		return anthropic.New(cfg.APIKey)
	default:
		return &llmfake.Client{}
	}
}

// newVectorStores builds one qdrant-backed Store per configured entry.
// With no entries configured the process still starts, backed by a single
// empty fake store, so ragd is runnable without external infra wired in.
func newVectorStores(entries []config.VectorStoreConfig) ([]vectorstore.Store, error) {
	if len(entries) == 0 {
		return []vectorstore.Store{&fakestore.Store{StoreID: "local"}}, nil
	}

	stores := make([]vectorstore.Store, 0, len(entries))
	for _, e := range entries {
		host, portStr, err := net.SplitHostPort(e.Addr)
		if err != nil {
			return nil, fmt.Errorf("vector store %q: invalid addr %q: %w", e.ID, e.Addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("vector store %q: invalid port in addr %q: %w", e.ID, e.Addr, err)
		}

		client, err := qdrantclient.NewClient(&qdrantclient.Config{Host: host, Port: port})
		if err != nil {
			return nil, fmt.Errorf("vector store %q: connecting to qdrant: %w", e.ID, err)
		}
		stores = append(stores, qdrantstore.New(e.ID, client, e.CollectionName, &fake.Text{}))
	}
	return stores, nil
}

// newFineTunePool selects the syncutil.Pool backend the learning pipeline
// dispatches detached fine-tune tasks to.
func newFineTunePool(backend string) syncutil.Pool {
	switch backend {
	case "ants":
		p, err := ants.NewPool(8)
		if err != nil {
			return syncutil.PoolOfNoPool()
		}
		return syncutil.PoolOfAnts(p)
	case "workerpool":
		return syncutil.PoolOfWorkerpool(workerpool.New(8))
	case "conc":
		return syncutil.PoolOfConc(conc.New().WithMaxGoroutines(8))
	default:
		return syncutil.PoolOfNoPool()
	}
}
