package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Basilakis/kai-sub004/internal/domain"
)

// Registry is the authoritative in-process view over a Store. All
// mutating operations go through its mutex so a read-modify-write against
// the backing Store is never interleaved with another one.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu sync.Mutex
}

// New creates a Registry backed by store.
func New(store Store, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// RegisterModel registers a new model version. Returns an InputError if
// model_id is already registered.
func (r *Registry) RegisterModel(modelID string, modelType domain.ModelType, modelPath string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	models, err := r.store.LoadModels()
	if err != nil {
		return err
	}
	for _, m := range models {
		if m.ModelID == modelID {
			return domain.NewInputError(fmt.Sprintf("model %q already registered", modelID), nil)
		}
	}

	now := time.Now().UTC()
	entry := domain.ModelEntry{
		ModelID:      modelID,
		ModelType:    modelType,
		ModelPath:    modelPath,
		RegisteredAt: now,
		Metadata:     metadata,
		Performance:  domain.Performance{Metrics: map[string]float64{}, LastUpdated: now},
	}
	models = append(models, entry)

	if err := r.store.SaveModels(models); err != nil {
		return err
	}
	r.logger.Info("model registered", zap.String("model_id", modelID), zap.String("model_type", string(modelType)))
	return nil
}

// GetModel looks up a model by id.
func (r *Registry) GetModel(modelID string) (*domain.ModelEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	models, err := r.store.LoadModels()
	if err != nil {
		r.logger.Warn("get_model load failed", zap.Error(err))
		return nil, false
	}
	for i := range models {
		if models[i].ModelID == modelID {
			m := models[i]
			return &m, true
		}
	}
	return nil, false
}

// GetLatestModels returns up to limit models of modelType ordered by
// RegisteredAt descending.
func (r *Registry) GetLatestModels(modelType domain.ModelType, limit int) []domain.ModelEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	models, err := r.store.LoadModels()
	if err != nil {
		r.logger.Warn("get_latest_models load failed", zap.Error(err))
		return nil
	}

	matching := lo.Filter(models, func(m domain.ModelEntry, _ int) bool { return m.ModelType == modelType })
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].RegisteredAt.After(matching[j].RegisteredAt)
	})
	if limit > 0 && len(matching) > limit {
		matching = matching[:limit]
	}
	return matching
}

// UpdateModelPerformance deep-merges metrics into the model's Performance,
// last-writer-wins on overlapping keys, union on disjoint ones, and stamps
// LastUpdated.
func (r *Registry) UpdateModelPerformance(modelID string, metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	models, err := r.store.LoadModels()
	if err != nil {
		return err
	}

	found := false
	for i := range models {
		if models[i].ModelID != modelID {
			continue
		}
		found = true
		perf := models[i].Performance.Clone()
		if perf.Metrics == nil {
			perf.Metrics = map[string]float64{}
		}
		for k, v := range metrics {
			perf.Metrics[k] = v
		}
		perf.LastUpdated = time.Now().UTC()
		models[i].Performance = perf
		break
	}
	if !found {
		return domain.NewInputError(fmt.Sprintf("model %q not found", modelID), nil)
	}

	if err := r.store.SaveModels(models); err != nil {
		return err
	}
	return nil
}

// RegisterABTest validates cfg and persists a new ABTest in Planned
// status.
func (r *Registry) RegisterABTest(cfg domain.ABTestConfig) (*domain.ABTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(cfg.Variants) < 2 {
		return nil, domain.NewInputError("ab test requires at least two variants", nil)
	}
	sum := 0.0
	for _, w := range cfg.TrafficSplit {
		sum += w
	}
	if len(cfg.TrafficSplit) != len(cfg.Variants) || sum < 0.999 || sum > 1.001 {
		return nil, domain.NewInputError("traffic_split must cover every variant and sum to 1.0", nil)
	}

	models, err := r.store.LoadModels()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.ModelEntry, len(models))
	for _, m := range models {
		byID[m.ModelID] = m
	}
	for _, v := range cfg.Variants {
		m, ok := byID[v]
		if !ok {
			return nil, domain.NewInputError(fmt.Sprintf("ab test variant %q does not reference a registered model", v), nil)
		}
		if m.ModelType != cfg.ModelType {
			return nil, domain.NewInputError(fmt.Sprintf("ab test variant %q is not of type %s", v, cfg.ModelType), nil)
		}
	}

	now := time.Now().UTC()
	test := domain.ABTest{
		ID:            uuid.NewString(),
		ModelType:     cfg.ModelType,
		StartDate:     now,
		EndDate:       now.Add(time.Duration(cfg.DurationDays * float64(24*time.Hour))),
		Variants:      cfg.Variants,
		TrafficSplit:  cfg.TrafficSplit,
		Status:        domain.ABTestPlanned,
		PrimaryMetric: cfg.PrimaryMetric,
	}

	tests, err := r.store.LoadABTests()
	if err != nil {
		return nil, err
	}
	tests = append(tests, test)
	if err := r.store.SaveABTests(tests); err != nil {
		return nil, err
	}

	r.logger.Info("ab test registered", zap.String("id", test.ID), zap.Strings("variants", test.Variants))
	return &test, nil
}

// UpdateABTestResults records per-variant metrics for a running or
// planned test. Status transitions only forward, never backward.
func (r *Registry) UpdateABTestResults(id string, status domain.ABTestStatus, results map[string]domain.VariantMetrics, winner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tests, err := r.store.LoadABTests()
	if err != nil {
		return err
	}

	found := false
	for i := range tests {
		if tests[i].ID != id {
			continue
		}
		found = true
		if !statusAllowsTransition(tests[i].Status, status) {
			return domain.NewInputError(fmt.Sprintf("ab test %q cannot transition from %s to %s", id, tests[i].Status, status), nil)
		}
		tests[i].Results = results
		tests[i].Status = status
		tests[i].Winner = winner
		break
	}
	if !found {
		return domain.NewInputError(fmt.Sprintf("ab test %q not found", id), nil)
	}

	return r.store.SaveABTests(tests)
}

// statusAllowsTransition enforces forward-only movement through
// Planned -> Running -> a terminal state. Concluded and Aborted are both
// terminal: once a test reaches either, no further transition is allowed,
// including between the two terminal states themselves.
func statusAllowsTransition(from, to domain.ABTestStatus) bool {
	if from == domain.ABTestConcluded || from == domain.ABTestAborted {
		return false
	}
	order := map[domain.ABTestStatus]int{
		domain.ABTestPlanned:   0,
		domain.ABTestRunning:   1,
		domain.ABTestConcluded: 2,
		domain.ABTestAborted:   2,
	}
	return order[to] >= order[from]
}

// SetDefaultModel points modelType at modelID, provided modelID exists
// and is of the matching type.
func (r *Registry) SetDefaultModel(modelType domain.ModelType, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	models, err := r.store.LoadModels()
	if err != nil {
		return err
	}
	var target *domain.ModelEntry
	for i := range models {
		if models[i].ModelID == modelID {
			target = &models[i]
			break
		}
	}
	if target == nil {
		return domain.NewInputError(fmt.Sprintf("model %q not found", modelID), nil)
	}
	if target.ModelType != modelType {
		return domain.NewInputError(fmt.Sprintf("model %q is of type %s, not %s", modelID, target.ModelType, modelType), nil)
	}

	defaults, err := r.store.LoadDefaults()
	if err != nil {
		return err
	}
	defaults[modelType] = modelID
	if err := r.store.SaveDefaults(defaults); err != nil {
		return err
	}
	r.logger.Info("default model set", zap.String("model_type", string(modelType)), zap.String("model_id", modelID))
	return nil
}

// GetDefaultModel resolves the current default model for modelType.
func (r *Registry) GetDefaultModel(modelType domain.ModelType) (*domain.ModelEntry, bool) {
	r.mu.Lock()
	defaults, err := r.store.LoadDefaults()
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("get_default_model defaults load failed", zap.Error(err))
		return nil, false
	}

	modelID, ok := defaults[modelType]
	if !ok {
		return nil, false
	}
	return r.GetModel(modelID)
}

// ListActiveABTests returns every Planned or Running ab test, for a
// caller that periodically polls for tests needing completion checks.
func (r *Registry) ListActiveABTests() []domain.ABTest {
	r.mu.Lock()
	defer r.mu.Unlock()

	tests, err := r.store.LoadABTests()
	if err != nil {
		r.logger.Warn("list_active_ab_tests load failed", zap.Error(err))
		return nil
	}

	return lo.Filter(tests, func(t domain.ABTest, _ int) bool {
		return t.Status == domain.ABTestPlanned || t.Status == domain.ABTestRunning
	})
}

// GetABTest returns the ab test with the given id.
func (r *Registry) GetABTest(id string) (*domain.ABTest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tests, err := r.store.LoadABTests()
	if err != nil {
		r.logger.Warn("get_ab_test load failed", zap.Error(err))
		return nil, false
	}
	for i := range tests {
		if tests[i].ID == id {
			t := tests[i]
			return &t, true
		}
	}
	return nil, false
}
