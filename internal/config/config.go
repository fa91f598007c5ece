// Package config defines the typed configuration surface for the RAG
// subsystem: one XxxConfig struct per component, each with a validate
// method that mutates the struct in place to apply defaults and returns
// an error on out-of-range values, following the same shape as the
// pipeline configs this module's retrieval packages are built from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegistryConfig configures the model registry's file-backed store.
type RegistryConfig struct {
	RegistryDir string `yaml:"registry_dir"`
	ModelsDir   string `yaml:"models_dir"`
}

func (c *RegistryConfig) validate(dataDir string) error {
	if c.RegistryDir == "" {
		c.RegistryDir = filepath.Join(dataDir, "model-registry")
	}
	if c.ModelsDir == "" {
		c.ModelsDir = filepath.Join(dataDir, "models")
	}
	return nil
}

// LearningPipelineConfig configures the continuous learning pipeline's
// triggers and A/B bookkeeping.
type LearningPipelineConfig struct {
	MinFeedbackSamples     int     `yaml:"min_feedback_samples"`
	FeedbackThreshold      float64 `yaml:"feedback_threshold"`
	FineTuningIntervalDays float64 `yaml:"fine_tuning_interval_days"`
	TestSize               float64 `yaml:"test_size"`
	ABTestDurationDays     float64 `yaml:"ab_test_duration_days"`
	ModelsToCompare        int     `yaml:"models_to_compare"`
	StateDir               string  `yaml:"state_dir"`
	TempDir                string  `yaml:"temp_dir"`
	CheckIntervalMinutes   float64 `yaml:"check_interval_minutes"`
	MaxRating              int     `yaml:"max_rating"`
	PrimaryMetric          string  `yaml:"primary_metric"`
	FineTunePoolBackend    string  `yaml:"fine_tune_pool_backend"`
}

func (c *LearningPipelineConfig) validate(dataDir string) error {
	if c.MinFeedbackSamples <= 0 {
		c.MinFeedbackSamples = 100
	}
	if c.FeedbackThreshold <= 0 {
		c.FeedbackThreshold = 0.7
	}
	if c.FineTuningIntervalDays <= 0 {
		c.FineTuningIntervalDays = 7
	}
	if c.TestSize <= 0 {
		c.TestSize = 0.2
	}
	if c.ABTestDurationDays <= 0 {
		c.ABTestDurationDays = 3
	}
	if c.ModelsToCompare <= 0 {
		c.ModelsToCompare = 2
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(dataDir, "state")
	}
	if c.TempDir == "" {
		c.TempDir = filepath.Join(dataDir, "temp")
	}
	if c.CheckIntervalMinutes <= 0 {
		c.CheckIntervalMinutes = 60
	}
	if c.MaxRating <= 0 {
		c.MaxRating = 5
	}
	if c.PrimaryMetric == "" {
		c.PrimaryMetric = "accuracy"
	}
	if c.FineTunePoolBackend == "" {
		c.FineTunePoolBackend = "ants"
	}
	return nil
}

// DistributedRetrievalConfig configures the distributed retriever's cache,
// concurrency, and timeout behavior.
type DistributedRetrievalConfig struct {
	CacheEnabled          bool   `yaml:"cache_enabled"`
	CacheTTLSeconds       int    `yaml:"cache_ttl_seconds"`
	BatchSize             int    `yaml:"batch_size"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests"`
	CacheBackend          string `yaml:"cache_backend"`
	RedisAddr             string `yaml:"redis_addr"`
}

func (c *DistributedRetrievalConfig) validate() error {
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 3600
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = 5
	}
	if c.CacheBackend == "" {
		c.CacheBackend = "memory"
	}
	if c.CacheBackend != "memory" && c.CacheBackend != "redis" {
		return fmt.Errorf("unknown cache_backend %q", c.CacheBackend)
	}
	if c.CacheBackend == "redis" && c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	return nil
}

// HierarchicalRetrieverConfig configures query decomposition and rerank.
type HierarchicalRetrieverConfig struct {
	MaxSubQueries            int    `yaml:"max_sub_queries"`
	MinQueryLength           int    `yaml:"min_query_length"`
	ReRankingEnabled         bool   `yaml:"reranking_enabled"`
	CombineStrategy          string `yaml:"combine_strategy"`
	QueryDecompositionModel  string `yaml:"query_decomposition_model"`
}

func (c *HierarchicalRetrieverConfig) validate() error {
	if c.MaxSubQueries <= 0 {
		c.MaxSubQueries = 3
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = 15
	}
	if c.CombineStrategy == "" {
		c.CombineStrategy = "weighted"
	}
	if c.QueryDecompositionModel == "" {
		c.QueryDecompositionModel = "gpt-3.5-turbo"
	}
	return nil
}

// CrossModalConfig carries the joint-representation dimensionality knobs
// and model names. fusion.Fusion stores it; no component reads its fields.
type CrossModalConfig struct {
	VisualFeatureDim int    `yaml:"visual_feature_dim"`
	TextFeatureDim   int    `yaml:"text_feature_dim"`
	JointFeatureDim  int    `yaml:"joint_feature_dim"`
	AttentionHeads   int    `yaml:"attention_heads"`
	VisionModelName  string `yaml:"vision_model_name"`
	TextModelName    string `yaml:"text_model_name"`
}

func (c *CrossModalConfig) validate() error {
	if c.VisualFeatureDim <= 0 {
		c.VisualFeatureDim = 512
	}
	if c.TextFeatureDim <= 0 {
		c.TextFeatureDim = 768
	}
	if c.JointFeatureDim <= 0 {
		c.JointFeatureDim = 1024
	}
	if c.AttentionHeads <= 0 {
		c.AttentionHeads = 8
	}
	if c.VisionModelName == "" {
		c.VisionModelName = "clip"
	}
	if c.TextModelName == "" {
		c.TextModelName = "bert"
	}
	return nil
}

// VectorStoreConfig names one Qdrant collection the distributed retriever
// fans out to. ID is the store identifier used for stats and breaker keys.
type VectorStoreConfig struct {
	ID             string `yaml:"id"`
	Addr           string `yaml:"addr"`
	CollectionName string `yaml:"collection_name"`
}

// LoggingConfig configures the zap logger constructed at process startup.
type LoggingConfig struct {
	Level  string `yaml:"log_level"`
	Format string `yaml:"log_format"`
}

func (c *LoggingConfig) validate() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	return nil
}

// LLMConfig selects and configures the chat/fine-tune collaborator.
type LLMConfig struct {
	Provider string `yaml:"llm_provider"`
	Model    string `yaml:"llm_model"`
	APIKey   string `yaml:"-"`
}

func (c *LLMConfig) validate() error {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Provider != "openai" && c.Provider != "anthropic" && c.Provider != "fake" {
		return fmt.Errorf("unknown llm_provider %q", c.Provider)
	}
	if c.Model == "" {
		c.Model = "gpt-3.5-turbo"
	}
	return nil
}

// Config is the root configuration object for the RAG subsystem. It is
// loaded from YAML, then overridden by RAG_-prefixed environment
// variables, mirroring the original's file-then-override precedence.
type Config struct {
	DataDir               string                      `yaml:"data_dir"`
	Registry              RegistryConfig              `yaml:"model_registry_config"`
	LearningPipeline      LearningPipelineConfig      `yaml:"learning_pipeline_config"`
	DistributedRetrieval  DistributedRetrievalConfig  `yaml:"distributed_retrieval_config"`
	HierarchicalRetriever HierarchicalRetrieverConfig `yaml:"hierarchical_retriever_config"`
	CrossModal            CrossModalConfig            `yaml:"cross_modal_attention_config"`
	Logging               LoggingConfig               `yaml:"logging_config"`
	LLM                   LLMConfig                   `yaml:"llm_config"`
	VectorStores          []VectorStoreConfig         `yaml:"vector_stores"`
}

// Default returns the default configuration, equivalent to the original's
// get_default_config.
func Default() Config {
	cfg := Config{DataDir: "./data"}
	_ = cfg.validate()
	return cfg
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if err := c.Registry.validate(c.DataDir); err != nil {
		return err
	}
	if err := c.LearningPipeline.validate(c.DataDir); err != nil {
		return err
	}
	if err := c.DistributedRetrieval.validate(); err != nil {
		return err
	}
	if err := c.HierarchicalRetriever.validate(); err != nil {
		return err
	}
	if err := c.CrossModal.validate(); err != nil {
		return err
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.LLM.validate(); err != nil {
		return err
	}
	return nil
}

// Load reads a YAML configuration file, merges it onto the defaults, then
// applies RAG_-prefixed environment variable overrides, matching the
// original's get_config(config_path, override_config) precedence with the
// file and the process environment standing in for the two override
// layers.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		var fromFile Config
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg = mergeNonZero(cfg, fromFile)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge returns a copy of c with every non-zero field of override applied
// on top, recursively through each nested XxxConfig — a typed
// reimplementation of the original's recursive merge_configs.
func (c Config) Merge(override Config) Config {
	return mergeNonZero(c, override)
}

func mergeNonZero(base, override Config) Config {
	if override.DataDir != "" {
		base.DataDir = override.DataDir
	}
	if override.Registry.RegistryDir != "" {
		base.Registry.RegistryDir = override.Registry.RegistryDir
	}
	if override.Registry.ModelsDir != "" {
		base.Registry.ModelsDir = override.Registry.ModelsDir
	}
	if override.LearningPipeline.MinFeedbackSamples != 0 {
		base.LearningPipeline.MinFeedbackSamples = override.LearningPipeline.MinFeedbackSamples
	}
	if override.LearningPipeline.FeedbackThreshold != 0 {
		base.LearningPipeline.FeedbackThreshold = override.LearningPipeline.FeedbackThreshold
	}
	if override.LearningPipeline.FineTuningIntervalDays != 0 {
		base.LearningPipeline.FineTuningIntervalDays = override.LearningPipeline.FineTuningIntervalDays
	}
	if override.LearningPipeline.TestSize != 0 {
		base.LearningPipeline.TestSize = override.LearningPipeline.TestSize
	}
	if override.LearningPipeline.ABTestDurationDays != 0 {
		base.LearningPipeline.ABTestDurationDays = override.LearningPipeline.ABTestDurationDays
	}
	if override.LearningPipeline.ModelsToCompare != 0 {
		base.LearningPipeline.ModelsToCompare = override.LearningPipeline.ModelsToCompare
	}
	if override.LearningPipeline.StateDir != "" {
		base.LearningPipeline.StateDir = override.LearningPipeline.StateDir
	}
	if override.LearningPipeline.TempDir != "" {
		base.LearningPipeline.TempDir = override.LearningPipeline.TempDir
	}
	if override.LearningPipeline.CheckIntervalMinutes != 0 {
		base.LearningPipeline.CheckIntervalMinutes = override.LearningPipeline.CheckIntervalMinutes
	}
	if override.LearningPipeline.MaxRating != 0 {
		base.LearningPipeline.MaxRating = override.LearningPipeline.MaxRating
	}
	if override.LearningPipeline.PrimaryMetric != "" {
		base.LearningPipeline.PrimaryMetric = override.LearningPipeline.PrimaryMetric
	}
	if override.LearningPipeline.FineTunePoolBackend != "" {
		base.LearningPipeline.FineTunePoolBackend = override.LearningPipeline.FineTunePoolBackend
	}
	if override.DistributedRetrieval.CacheTTLSeconds != 0 {
		base.DistributedRetrieval.CacheTTLSeconds = override.DistributedRetrieval.CacheTTLSeconds
	}
	if override.DistributedRetrieval.BatchSize != 0 {
		base.DistributedRetrieval.BatchSize = override.DistributedRetrieval.BatchSize
	}
	if override.DistributedRetrieval.TimeoutSeconds != 0 {
		base.DistributedRetrieval.TimeoutSeconds = override.DistributedRetrieval.TimeoutSeconds
	}
	if override.DistributedRetrieval.MaxConcurrentRequests != 0 {
		base.DistributedRetrieval.MaxConcurrentRequests = override.DistributedRetrieval.MaxConcurrentRequests
	}
	if override.DistributedRetrieval.CacheBackend != "" {
		base.DistributedRetrieval.CacheBackend = override.DistributedRetrieval.CacheBackend
	}
	if override.DistributedRetrieval.RedisAddr != "" {
		base.DistributedRetrieval.RedisAddr = override.DistributedRetrieval.RedisAddr
	}
	base.DistributedRetrieval.CacheEnabled = base.DistributedRetrieval.CacheEnabled || override.DistributedRetrieval.CacheEnabled
	if override.HierarchicalRetriever.MaxSubQueries != 0 {
		base.HierarchicalRetriever.MaxSubQueries = override.HierarchicalRetriever.MaxSubQueries
	}
	if override.HierarchicalRetriever.MinQueryLength != 0 {
		base.HierarchicalRetriever.MinQueryLength = override.HierarchicalRetriever.MinQueryLength
	}
	base.HierarchicalRetriever.ReRankingEnabled = base.HierarchicalRetriever.ReRankingEnabled || override.HierarchicalRetriever.ReRankingEnabled
	if override.HierarchicalRetriever.CombineStrategy != "" {
		base.HierarchicalRetriever.CombineStrategy = override.HierarchicalRetriever.CombineStrategy
	}
	if override.HierarchicalRetriever.QueryDecompositionModel != "" {
		base.HierarchicalRetriever.QueryDecompositionModel = override.HierarchicalRetriever.QueryDecompositionModel
	}
	if override.CrossModal.VisualFeatureDim != 0 {
		base.CrossModal.VisualFeatureDim = override.CrossModal.VisualFeatureDim
	}
	if override.CrossModal.TextFeatureDim != 0 {
		base.CrossModal.TextFeatureDim = override.CrossModal.TextFeatureDim
	}
	if override.CrossModal.JointFeatureDim != 0 {
		base.CrossModal.JointFeatureDim = override.CrossModal.JointFeatureDim
	}
	if override.CrossModal.AttentionHeads != 0 {
		base.CrossModal.AttentionHeads = override.CrossModal.AttentionHeads
	}
	if override.CrossModal.VisionModelName != "" {
		base.CrossModal.VisionModelName = override.CrossModal.VisionModelName
	}
	if override.CrossModal.TextModelName != "" {
		base.CrossModal.TextModelName = override.CrossModal.TextModelName
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.LLM.Provider != "" {
		base.LLM.Provider = override.LLM.Provider
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if len(override.VectorStores) > 0 {
		base.VectorStores = override.VectorStores
	}
	return base
}

// applyEnvOverrides applies RAG_-prefixed environment variables on top of
// cfg. Only a deliberately small set of knobs that operators commonly need
// to flip without editing the file are covered.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("RAG_CACHE_ENABLED"); v != "" {
		cfg.DistributedRetrieval.CacheEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RAG_CACHE_BACKEND"); v != "" {
		cfg.DistributedRetrieval.CacheBackend = v
	}
	if v := os.Getenv("RAG_REDIS_ADDR"); v != "" {
		cfg.DistributedRetrieval.RedisAddr = v
	}
	if v := os.Getenv("RAG_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("RAG_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("RAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RAG_MAX_CONCURRENT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DistributedRetrieval.MaxConcurrentRequests = n
		}
	}
}
