// Package learning implements the continuous learning pipeline: it watches
// accumulated feedback, fine-tunes new model versions when the configured
// triggers fire, opens an A/B test against the current defaults, and
// promotes the winner once the test window closes.
package learning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/config"
	"github.com/Basilakis/kai-sub004/internal/domain"
	"github.com/Basilakis/kai-sub004/internal/embedding"
	"github.com/Basilakis/kai-sub004/internal/feedback"
	"github.com/Basilakis/kai-sub004/internal/llm"
	"github.com/Basilakis/kai-sub004/internal/registry"
	"github.com/Basilakis/kai-sub004/pkg/syncutil"
)

// Pipeline is the continuous learning pipeline described in §4.2. It is
// safe for concurrent use; at most one fine-tune per model type may be
// in flight at any time.
type Pipeline struct {
	cfg      config.LearningPipelineConfig
	registry *registry.Registry
	feedback feedback.Store
	embedder embedding.Model
	llmc     llm.Client
	logger   *zap.Logger
	pool     syncutil.Pool

	mu           sync.Mutex
	states       map[domain.ModelType]State
	lastFineTune map[domain.ModelType]time.Time
}

// New builds a Pipeline. embedder fine-tunes ModelTypeEmbedding targets;
// llmc fine-tunes every other model type.
func New(cfg config.LearningPipelineConfig, reg *registry.Registry, fb feedback.Store, embedder embedding.Model, llmc llm.Client, pool syncutil.Pool, logger *zap.Logger) *Pipeline {
	if pool == nil {
		pool = syncutil.PoolOfNoPool()
	}
	return &Pipeline{
		cfg:          cfg,
		registry:     reg,
		feedback:     fb,
		embedder:     embedder,
		llmc:         llmc,
		logger:       logger,
		pool:         pool,
		states:       make(map[domain.ModelType]State),
		lastFineTune: make(map[domain.ModelType]time.Time),
	}
}

func (p *Pipeline) state(modelType domain.ModelType) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[modelType]
}

func (p *Pipeline) setState(modelType domain.ModelType, s State) {
	p.mu.Lock()
	p.states[modelType] = s
	p.mu.Unlock()
}

// CheckFineTuningTriggers reports whether modelType is due for a fine-tune:
// enough time has elapsed since the last successful run, enough feedback
// has accumulated, and mean quality has room to improve.
func (p *Pipeline) CheckFineTuningTriggers(ctx context.Context, modelType domain.ModelType) bool {
	if p.state(modelType) != StateIdle {
		return false
	}

	since := p.windowStart(modelType)
	if time.Since(since) < time.Duration(p.cfg.FineTuningIntervalDays*float64(24*time.Hour)) {
		return false
	}

	metrics, err := p.feedback.GetFeedbackMetrics(ctx, since)
	if err != nil {
		p.logger.Warn("trigger check: feedback metrics unavailable", zap.String("model_type", string(modelType)), zap.Error(err))
		return false
	}
	if metrics.Count < p.cfg.MinFeedbackSamples {
		return false
	}
	maxRating := p.cfg.MaxRating
	if maxRating <= 0 {
		maxRating = metrics.MaxRating
	}
	return metrics.MeanRating/float64(maxRating) <= p.cfg.FeedbackThreshold
}

func (p *Pipeline) windowStart(modelType domain.ModelType) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.lastFineTune[modelType]; ok {
		return t
	}
	return time.Time{}
}

// LaunchFineTuning submits RunFineTuning to the pipeline's pool as a
// detached, cancellable task. The caller is not required to wait on the
// returned future.
func (p *Pipeline) LaunchFineTuning(ctx context.Context, modelType domain.ModelType) (*syncutil.FutureTask[error], error) {
	future := syncutil.NewFutureTask(func(interrupt <-chan struct{}) (error, error) {
		taskCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-interrupt:
				cancel()
			case <-taskCtx.Done():
			}
		}()
		err := p.RunFineTuning(taskCtx, modelType)
		return err, err
	})
	if err := p.pool.Submit(future.Run); err != nil {
		return nil, domain.NewDependencyError("pool", "submit fine-tune task", err)
	}
	return future, nil
}

// RunFineTuning executes the fine-tune workflow synchronously: dataset
// materialization, delegated fine-tune, registration, and opening an A/B
// test. It refuses to start a second run for a model type that is not
// Idle.
func (p *Pipeline) RunFineTuning(ctx context.Context, modelType domain.ModelType) error {
	p.mu.Lock()
	if p.states[modelType] != StateIdle {
		p.mu.Unlock()
		return domain.NewStateError(fmt.Sprintf("fine-tune already in progress for %s", modelType))
	}
	p.states[modelType] = StateBuildingDataset
	p.mu.Unlock()

	if err := p.runFineTuningLocked(ctx, modelType); err != nil {
		p.logger.Warn("fine-tune run failed", zap.String("model_type", string(modelType)), zap.Error(err))
		p.setState(modelType, StateIdle)
		return err
	}
	return nil
}

func (p *Pipeline) runFineTuningLocked(ctx context.Context, modelType domain.ModelType) error {
	since := p.windowStart(modelType)
	records, err := p.feedback.GetFeedbackForTraining(ctx, since)
	if err != nil {
		return domain.NewDependencyError("feedback", "load training window", err)
	}

	trainPath, valPath, trainExamples, err := p.materializeDataset(modelType, records)
	if err != nil {
		return err
	}

	parent, _ := p.registry.GetDefaultModel(modelType)

	p.setState(modelType, StateFineTuning)
	modelPath, err := p.fineTune(ctx, modelType, trainPath, valPath, parent)
	if err != nil {
		return domain.NewDependencyError("llm", "fine-tune", err)
	}

	newModelID := fmt.Sprintf("%s-%s", modelType, uuid.NewString()[:8])
	metadata := map[string]any{
		"sample_count": len(trainExamples),
		"dataset_path": trainPath,
	}
	if parent != nil {
		metadata["parent_model_id"] = parent.ModelID
	}

	p.setState(modelType, StateRegistered)
	if err := p.registry.RegisterModel(newModelID, modelType, modelPath, metadata); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastFineTune[modelType] = time.Now().UTC()
	p.mu.Unlock()

	variants := p.comparisonVariants(modelType, newModelID)
	if len(variants) < 2 {
		if err := p.registry.SetDefaultModel(modelType, newModelID); err != nil {
			return err
		}
		p.setState(modelType, StateIdle)
		return nil
	}

	split := map[string]float64{}
	for _, v := range variants {
		split[v] = 1.0 / float64(len(variants))
	}

	p.setState(modelType, StateABTesting)
	test, err := p.registry.RegisterABTest(domain.ABTestConfig{
		ModelType:     modelType,
		Variants:      variants,
		TrafficSplit:  split,
		DurationDays:  p.cfg.ABTestDurationDays,
		PrimaryMetric: p.cfg.PrimaryMetric,
	})
	if err != nil {
		return err
	}
	if err := p.registry.UpdateABTestResults(test.ID, domain.ABTestRunning, nil, ""); err != nil {
		return err
	}

	p.logger.Info("fine-tune registered and ab test opened",
		zap.String("model_type", string(modelType)),
		zap.String("new_model_id", newModelID),
		zap.String("ab_test_id", test.ID))
	return nil
}

func (p *Pipeline) comparisonVariants(modelType domain.ModelType, newModelID string) []string {
	latest := p.registry.GetLatestModels(modelType, p.cfg.ModelsToCompare)
	variants := []string{newModelID}
	for _, m := range latest {
		if m.ModelID == newModelID {
			continue
		}
		variants = append(variants, m.ModelID)
		if len(variants) >= p.cfg.ModelsToCompare {
			break
		}
	}
	return variants
}

func (p *Pipeline) fineTune(ctx context.Context, modelType domain.ModelType, trainPath, valPath string, parent *domain.ModelEntry) (string, error) {
	outputPath := filepath.Join(filepath.Dir(trainPath), "model-out")

	if modelType == domain.ModelTypeEmbedding {
		if p.embedder == nil {
			return "", domain.NewDependencyError("embedding", "no embedding collaborator configured", nil)
		}
		examples, err := readExamples(trainPath)
		if err != nil {
			return "", err
		}
		valExamples, err := readExamples(valPath)
		if err != nil {
			return "", err
		}
		return p.embedder.FineTune(ctx, examples, valExamples, outputPath, 3, 32, 1e-4)
	}

	if p.llmc == nil {
		return "", domain.NewDependencyError("llm", "no llm collaborator configured", nil)
	}
	baseModel := p.cfg.PrimaryMetric
	if parent != nil {
		baseModel = parent.ModelPath
	}
	suffix := string(modelType)
	hyperparams := map[string]any{"n_epochs": 3}
	return p.llmc.FineTune(ctx, trainPath, valPath, baseModel, suffix, hyperparams)
}

func (p *Pipeline) materializeDataset(modelType domain.ModelType, records []domain.FeedbackRecord) (trainPath, valPath string, examples []domain.TrainingExample, err error) {
	dir := filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s-%d", modelType, time.Now().UTC().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", nil, domain.NewStorageError("create dataset dir", err)
	}

	for _, r := range records {
		examples = append(examples, domain.TrainingExample{Input: r.Query, Target: r.Response})
	}

	splitAt := int(float64(len(examples)) * (1 - p.cfg.TestSize))
	train := examples[:splitAt]
	val := examples[splitAt:]

	trainPath = filepath.Join(dir, "train.jsonl")
	valPath = filepath.Join(dir, "val.jsonl")
	if err := writeExamples(trainPath, train); err != nil {
		return "", "", nil, err
	}
	if err := writeExamples(valPath, val); err != nil {
		return "", "", nil, err
	}
	return trainPath, valPath, examples, nil
}

func writeExamples(path string, examples []domain.TrainingExample) error {
	f, err := os.Create(path)
	if err != nil {
		return domain.NewStorageError("create dataset file", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, ex := range examples {
		if err := enc.Encode(ex); err != nil {
			return domain.NewStorageError("write dataset example", err)
		}
	}
	return nil
}

func readExamples(path string) ([]domain.TrainingExample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewStorageError("read dataset file", err)
	}
	var out []domain.TrainingExample
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var ex domain.TrainingExample
		if err := dec.Decode(&ex); err != nil {
			break
		}
		out = append(out, ex)
	}
	return out, nil
}

// CheckABTestCompletions concludes test if it is running and its window
// has closed, declaring a winner by the configured primary metric and
// promoting it via SetDefaultModel. Ties are broken by the newer
// RegisteredAt. A test whose window closed with fewer observed feedback
// samples than MinFeedbackSamples is concluded without a promotion,
// leaving the current default in place. Once the test is concluded the
// model type's pipeline state returns to Idle.
func (p *Pipeline) CheckABTestCompletions(ctx context.Context, test *domain.ABTest) error {
	if test.Status != domain.ABTestRunning {
		return nil
	}
	if time.Now().UTC().Before(test.EndDate) {
		return nil
	}

	sampleCount, err := p.feedback.GetFeedbackCount(ctx, test.StartDate)
	if err != nil {
		return domain.NewDependencyError("feedback", "sample count for ab test conclusion", err)
	}

	results := map[string]domain.VariantMetrics{}
	var winner string
	var best float64
	var bestEntry *domain.ModelEntry
	for _, variantID := range test.Variants {
		entry, ok := p.registry.GetModel(variantID)
		if !ok {
			continue
		}
		score := entry.Performance.Metrics[test.PrimaryMetric]
		results[variantID] = domain.VariantMetrics{
			Metrics:     entry.Performance.Metrics,
			SampleSize:  sampleCount / len(test.Variants),
			LastUpdated: entry.Performance.LastUpdated,
		}
		if bestEntry == nil || score > best || (score == best && entry.RegisteredAt.After(bestEntry.RegisteredAt)) {
			best = score
			bestEntry = entry
			winner = variantID
		}
	}

	if sampleCount < p.cfg.MinFeedbackSamples {
		p.logger.Info("ab test concluded with insufficient samples, keeping current default",
			zap.String("ab_test_id", test.ID), zap.Int("sample_count", sampleCount))
		defer p.setState(test.ModelType, StateIdle)
		return p.registry.UpdateABTestResults(test.ID, domain.ABTestConcluded, results, "")
	}

	if err := p.registry.UpdateABTestResults(test.ID, domain.ABTestConcluded, results, winner); err != nil {
		return err
	}
	if winner == "" {
		p.setState(test.ModelType, StateIdle)
		return nil
	}
	p.setState(test.ModelType, StatePromoted)
	defer p.setState(test.ModelType, StateIdle)
	return p.registry.SetDefaultModel(test.ModelType, winner)
}
