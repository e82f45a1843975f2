// Package config loads the engine's configuration surface from YAML with
// environment-variable overrides, following the layering convention
// (defaults -> user config -> project config -> env vars) used throughout
// this codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EvictionPolicy is the closed set of eviction victim-selection strategies.
type EvictionPolicy string

const (
	PolicyLRU            EvictionPolicy = "LRU"
	PolicyOldestFirst     EvictionPolicy = "OldestFirst"
	PolicyLargestFirst    EvictionPolicy = "LargestFirst"
	PolicyMostExpensive   EvictionPolicy = "MostExpensive"
	PolicyLeastExpensive  EvictionPolicy = "LeastExpensive"
)

// VectorMetric is the closed set of similarity metrics for the vector index.
type VectorMetric string

const (
	MetricCosine     VectorMetric = "Cosine"
	MetricEuclidean  VectorMetric = "Euclidean"
	MetricManhattan  VectorMetric = "Manhattan"
	MetricDotProduct VectorMetric = "DotProduct"
)

// Config is the complete configuration for the cache and retrieval engine.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	HotTier  HotTierConfig  `yaml:"hot_tier" json:"hot_tier"`
	Budget   BudgetConfig   `yaml:"budget" json:"budget"`
	Chunker  ChunkerConfig  `yaml:"chunker" json:"chunker"`
	Vector   VectorConfig   `yaml:"vector" json:"vector"`
	Eviction EvictionConfig `yaml:"eviction" json:"eviction"`
}

// CacheConfig configures the durable Cache Store.
type CacheConfig struct {
	StorePath string `yaml:"store_path" json:"store_path"`
}

// HotTierConfig configures the in-memory hot tier (C12).
type HotTierConfig struct {
	Capacity    int    `yaml:"capacity" json:"capacity"`
	DefaultTTL  string `yaml:"default_ttl" json:"default_ttl"`
	EnableStats bool   `yaml:"enable_stats" json:"enable_stats"`
}

// BudgetConfig configures the budget monitor (C4).
type BudgetConfig struct {
	MonthlyLimit   float64 `yaml:"monthly_limit" json:"monthly_limit"`
	WarnThreshold  float64 `yaml:"warn_threshold" json:"warn_threshold"`
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold"`
}

// ChunkerConfig configures document chunking (C8).
type ChunkerConfig struct {
	MaxChunkTokens   int `yaml:"max_chunk_tokens" json:"max_chunk_tokens"`
	OverlapTokens    int `yaml:"overlap_tokens" json:"overlap_tokens"`
	SplitHeadingLevel int `yaml:"split_heading_level" json:"split_heading_level"`
}

// VectorConfig configures the approximate nearest-neighbor vector index (C10).
type VectorConfig struct {
	Dimension      int          `yaml:"dimension" json:"dimension"`
	M              int          `yaml:"m" json:"m"`
	EfConstruction int          `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int          `yaml:"ef_search" json:"ef_search"`
	MaxLayers      int          `yaml:"max_layers" json:"max_layers"`
	Metric         VectorMetric `yaml:"metric" json:"metric"`
}

// EvictionConfig configures the eviction engine (C6).
type EvictionConfig struct {
	DefaultPolicy EvictionPolicy `yaml:"default_policy" json:"default_policy"`
	TargetBytes   int64          `yaml:"target_bytes" json:"target_bytes"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Cache: CacheConfig{
			StorePath: defaultStorePath(),
		},
		HotTier: HotTierConfig{
			Capacity:    1000,
			DefaultTTL:  "15m",
			EnableStats: true,
		},
		Budget: BudgetConfig{
			MonthlyLimit:   0, // 0 = unconfigured; classify() treats this as always OK
			WarnThreshold:  0.75,
			AlertThreshold: 0.90,
		},
		Chunker: ChunkerConfig{
			MaxChunkTokens:    512,
			OverlapTokens:     64,
			SplitHeadingLevel: 2,
		},
		Vector: VectorConfig{
			Dimension:      768,
			M:              16,
			EfConstruction: 200,
			EfSearch:       50,
			MaxLayers:      16,
			Metric:         MetricCosine,
		},
		Eviction: EvictionConfig{
			DefaultPolicy: PolicyLRU,
			TargetBytes:   1 << 30, // 1 GiB
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".arborcache", "cache.db")
	}
	return filepath.Join(home, ".arborcache", "cache.db")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "arborcache", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "arborcache", "config.yaml")
	}
	return filepath.Join(home, ".config", "arborcache", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration from dir, applying in order of increasing
// precedence: hardcoded defaults, user config, project config
// (.arborcache.yaml in dir), then ARBORCACHE_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".arborcache.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".arborcache.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Cache.StorePath != "" {
		c.Cache.StorePath = other.Cache.StorePath
	}

	if other.HotTier.Capacity != 0 {
		c.HotTier.Capacity = other.HotTier.Capacity
	}
	if other.HotTier.DefaultTTL != "" {
		c.HotTier.DefaultTTL = other.HotTier.DefaultTTL
	}
	if other.HotTier.EnableStats {
		c.HotTier.EnableStats = other.HotTier.EnableStats
	}

	if other.Budget.MonthlyLimit != 0 {
		c.Budget.MonthlyLimit = other.Budget.MonthlyLimit
	}
	if other.Budget.WarnThreshold != 0 {
		c.Budget.WarnThreshold = other.Budget.WarnThreshold
	}
	if other.Budget.AlertThreshold != 0 {
		c.Budget.AlertThreshold = other.Budget.AlertThreshold
	}

	if other.Chunker.MaxChunkTokens != 0 {
		c.Chunker.MaxChunkTokens = other.Chunker.MaxChunkTokens
	}
	if other.Chunker.OverlapTokens != 0 {
		c.Chunker.OverlapTokens = other.Chunker.OverlapTokens
	}
	if other.Chunker.SplitHeadingLevel != 0 {
		c.Chunker.SplitHeadingLevel = other.Chunker.SplitHeadingLevel
	}

	if other.Vector.Dimension != 0 {
		c.Vector.Dimension = other.Vector.Dimension
	}
	if other.Vector.M != 0 {
		c.Vector.M = other.Vector.M
	}
	if other.Vector.EfConstruction != 0 {
		c.Vector.EfConstruction = other.Vector.EfConstruction
	}
	if other.Vector.EfSearch != 0 {
		c.Vector.EfSearch = other.Vector.EfSearch
	}
	if other.Vector.MaxLayers != 0 {
		c.Vector.MaxLayers = other.Vector.MaxLayers
	}
	if other.Vector.Metric != "" {
		c.Vector.Metric = other.Vector.Metric
	}

	if other.Eviction.DefaultPolicy != "" {
		c.Eviction.DefaultPolicy = other.Eviction.DefaultPolicy
	}
	if other.Eviction.TargetBytes != 0 {
		c.Eviction.TargetBytes = other.Eviction.TargetBytes
	}
}

// applyEnvOverrides applies ARBORCACHE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ARBORCACHE_STORE_PATH"); v != "" {
		c.Cache.StorePath = v
	}
	if v := os.Getenv("ARBORCACHE_HOT_TIER_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HotTier.Capacity = n
		}
	}
	if v := os.Getenv("ARBORCACHE_HOT_TIER_TTL"); v != "" {
		c.HotTier.DefaultTTL = v
	}
	if v := os.Getenv("ARBORCACHE_BUDGET_MONTHLY_LIMIT"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 {
			c.Budget.MonthlyLimit = f
		}
	}
	if v := os.Getenv("ARBORCACHE_BUDGET_WARN_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil && f > 0 && f <= 1 {
			c.Budget.WarnThreshold = f
		}
	}
	if v := os.Getenv("ARBORCACHE_BUDGET_ALERT_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil && f > 0 && f <= 1 {
			c.Budget.AlertThreshold = f
		}
	}
	if v := os.Getenv("ARBORCACHE_VECTOR_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Vector.Dimension = n
		}
	}
	if v := os.Getenv("ARBORCACHE_EVICTION_POLICY"); v != "" {
		c.Eviction.DefaultPolicy = EvictionPolicy(v)
	}
	if v := os.Getenv("ARBORCACHE_EVICTION_TARGET_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Eviction.TargetBytes = n
		}
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.HotTier.Capacity < 0 {
		return fmt.Errorf("hot_tier.capacity must be non-negative, got %d", c.HotTier.Capacity)
	}
	if c.Budget.MonthlyLimit < 0 {
		return fmt.Errorf("budget.monthly_limit must be non-negative, got %f", c.Budget.MonthlyLimit)
	}
	if c.Budget.WarnThreshold <= 0 || c.Budget.WarnThreshold > 1 {
		return fmt.Errorf("budget.warn_threshold must be in (0,1], got %f", c.Budget.WarnThreshold)
	}
	if c.Budget.AlertThreshold <= 0 || c.Budget.AlertThreshold > 1 {
		return fmt.Errorf("budget.alert_threshold must be in (0,1], got %f", c.Budget.AlertThreshold)
	}
	if c.Budget.WarnThreshold > c.Budget.AlertThreshold {
		return fmt.Errorf("budget.warn_threshold (%f) must be <= budget.alert_threshold (%f)", c.Budget.WarnThreshold, c.Budget.AlertThreshold)
	}
	if c.Chunker.MaxChunkTokens <= 0 {
		return fmt.Errorf("chunker.max_chunk_tokens must be positive, got %d", c.Chunker.MaxChunkTokens)
	}
	if c.Chunker.OverlapTokens < 0 {
		return fmt.Errorf("chunker.overlap_tokens must be non-negative, got %d", c.Chunker.OverlapTokens)
	}
	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("vector.dimension must be positive, got %d", c.Vector.Dimension)
	}
	validMetrics := map[VectorMetric]bool{MetricCosine: true, MetricEuclidean: true, MetricManhattan: true, MetricDotProduct: true}
	if !validMetrics[c.Vector.Metric] {
		return fmt.Errorf("vector.metric must be one of Cosine, Euclidean, Manhattan, DotProduct; got %s", c.Vector.Metric)
	}
	validPolicies := map[EvictionPolicy]bool{
		PolicyLRU: true, PolicyOldestFirst: true, PolicyLargestFirst: true,
		PolicyMostExpensive: true, PolicyLeastExpensive: true,
	}
	if !validPolicies[c.Eviction.DefaultPolicy] {
		return fmt.Errorf("eviction.default_policy must be one of LRU, OldestFirst, LargestFirst, MostExpensive, LeastExpensive; got %s", c.Eviction.DefaultPolicy)
	}
	if c.Eviction.TargetBytes <= 0 {
		return fmt.Errorf("eviction.target_bytes must be positive, got %d", c.Eviction.TargetBytes)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, if any.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
