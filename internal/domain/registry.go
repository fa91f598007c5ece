package domain

import "time"

// ModelType identifies the role a model serves in production traffic.
type ModelType string

const (
	ModelTypeEmbedding  ModelType = "embedding"
	ModelTypeGenerative ModelType = "generative"
	ModelTypeVision     ModelType = "vision"
	ModelTypeText       ModelType = "text"
)

// ModelEntry is a registered model version. ModelID is globally unique
// across all ModelTypes. Performance is mutated only through
// UpdateModelPerformance; every other field is set once at registration.
type ModelEntry struct {
	ModelID      string         `json:"model_id"`
	ModelType    ModelType      `json:"model_type"`
	ModelPath    string         `json:"model_path"`
	RegisteredAt time.Time      `json:"registered_date"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Performance  Performance    `json:"performance"`
}

// Performance tracks metric → value alongside the timestamp of the most
// recent update. LastUpdated is always >= the owning ModelEntry's
// RegisteredAt.
type Performance struct {
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	LastUpdated time.Time          `json:"last_updated"`
}

// Clone returns a deep copy so callers can merge into it without mutating
// the registry's backing data outside a write path.
func (p Performance) Clone() Performance {
	out := Performance{LastUpdated: p.LastUpdated, Metrics: make(map[string]float64, len(p.Metrics))}
	for k, v := range p.Metrics {
		out.Metrics[k] = v
	}
	return out
}

// ABTestStatus transitions only forward: Planned -> Running ->
// (Concluded | Aborted).
type ABTestStatus string

const (
	ABTestPlanned   ABTestStatus = "planned"
	ABTestRunning   ABTestStatus = "running"
	ABTestConcluded ABTestStatus = "concluded"
	ABTestAborted   ABTestStatus = "aborted"
)

// VariantMetrics is the aggregated quality signal for one A/B variant.
type VariantMetrics struct {
	Metrics     map[string]float64 `json:"metrics"`
	SampleSize  int                `json:"sample_size"`
	LastUpdated time.Time          `json:"last_updated"`
}

// ABTest compares two or more model variants on live traffic for a bounded
// duration.
type ABTest struct {
	ID           string                    `json:"id"`
	ModelType    ModelType                 `json:"model_type"`
	StartDate    time.Time                 `json:"start_date"`
	EndDate      time.Time                 `json:"end_date"`
	Variants     []string                  `json:"variants"`
	TrafficSplit map[string]float64        `json:"traffic_split"`
	Status       ABTestStatus              `json:"status"`
	Results      map[string]VariantMetrics `json:"results,omitempty"`
	PrimaryMetric string                   `json:"primary_metric"`
	Winner       string                    `json:"winner,omitempty"`
}

// ABTestConfig is the caller-supplied shape for RegisterABTest; it omits
// server-assigned fields (ID, Status, Results).
type ABTestConfig struct {
	ModelType     ModelType
	Variants      []string
	TrafficSplit  map[string]float64
	DurationDays  float64
	PrimaryMetric string
}
