// Package config loads and validates the ShadowFS configuration
// document: source roots, rules, transforms, virtual layers, cache
// sizing, and the ambient operational settings (logging, metrics,
// health, network resilience).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the complete ShadowFS configuration document.
type Configuration struct {
	Global      GlobalConfig      `yaml:"global"`
	Sources     []SourceConfig    `yaml:"sources"`
	Rules       []RuleConfig      `yaml:"rules"`
	Transforms  []TransformConfig `yaml:"transforms"`
	Layers      []LayerConfig     `yaml:"layers"`
	Performance PerformanceConfig `yaml:"performance"`
	Cache       CacheConfig       `yaml:"cache"`
	Limits      LimitsConfig      `yaml:"limits"`
	WriteBuffer WriteBufferConfig `yaml:"write_buffer"`
	Network     NetworkConfig     `yaml:"network"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Features    FeatureConfig     `yaml:"features"`
}

// GlobalConfig represents global daemon settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MountPoint  string `yaml:"mount_point"`
	ControlPort int    `yaml:"control_port"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
}

// SourceConfig declares one backing directory tree. On a name collision
// across sources the one with the lower Priority value wins.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Path     string `yaml:"path"`
	Priority int    `yaml:"priority"`
	ReadOnly bool   `yaml:"read_only"`
}

// RuleConfig declares one ordered include/exclude predicate.
type RuleConfig struct {
	Name        string   `yaml:"name"`
	Pattern     string   `yaml:"pattern"`
	PatternKind string   `yaml:"pattern_kind"` // "glob" or "regex"
	Action      string   `yaml:"action"`       // "include" or "exclude"
	Transforms  []string `yaml:"transforms,omitempty"`
}

// TransformConfig declares one named transform stage. A stage applies
// to the paths its Selector glob matches; a stage with no Selector is
// only applied where a RuleConfig references it by name, inheriting
// that rule's pattern as its selector.
type TransformConfig struct {
	Name     string                 `yaml:"name"`
	Selector string                 `yaml:"selector,omitempty"`
	Kind     string                 `yaml:"kind"`
	Params   map[string]interface{} `yaml:"params,omitempty"`
	Fatal    bool                   `yaml:"fatal"`
}

// LayerConfig declares one mounted virtual layer.
type LayerConfig struct {
	Name       string            `yaml:"name"`
	MountPoint string            `yaml:"mount_point"`
	Kind       string            `yaml:"kind"`
	SourceRoot string            `yaml:"source_root"`
	Params     map[string]string `yaml:"params,omitempty"`
}

// PerformanceConfig represents performance-related settings.
type PerformanceConfig struct {
	MaxConcurrency     int    `yaml:"max_concurrency"`
	EnumeratorWorkers  int    `yaml:"enumerator_workers"`
	TransformMemoryCap string `yaml:"transform_memory_cap"`
}

// CacheConfig sizes the three cache levels.
type CacheConfig struct {
	L1MaxEntries int           `yaml:"l1_max_entries"`
	L1TTL        time.Duration `yaml:"l1_ttl"`
	L2MaxSize    string        `yaml:"l2_max_size"`
	L3MaxSize    string        `yaml:"l3_max_size"`
}

// LimitsConfig bounds per-operation resource consumption.
type LimitsConfig struct {
	MaxFileSize          string        `yaml:"max_file_size"`
	MaxTransformOutput   string        `yaml:"max_transform_output"`
	MaxTransformWallTime time.Duration `yaml:"max_transform_wall_time"`
	MaxSymlinkDepth      int           `yaml:"max_symlink_depth"`
}

// WriteBufferConfig configures optional write-through buffering.
type WriteBufferConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushSize     string        `yaml:"flush_size"`
	MaxBuffers    int           `yaml:"max_buffers"`
}

// NetworkConfig represents backing-I/O resilience settings (C16).
type NetworkConfig struct {
	Timeouts       TimeoutConfig        `yaml:"timeouts"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// TimeoutConfig represents timeout settings for backing I/O.
type TimeoutConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
	Stat  time.Duration `yaml:"stat"`
}

// RetryConfig represents retry settings.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig represents circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MonitoringConfig represents monitoring settings.
type MonitoringConfig struct {
	Metrics      MetricsConfig      `yaml:"metrics"`
	HealthChecks HealthChecksConfig `yaml:"health_checks"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// HealthChecksConfig represents health check settings.
type HealthChecksConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Structured bool   `yaml:"structured"`
	Format     string `yaml:"format"`
}

// FeatureConfig represents feature flags.
type FeatureConfig struct {
	WriteThrough    bool `yaml:"write_through"`
	MetadataCaching bool `yaml:"metadata_caching"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFile:     "",
			MountPoint:  "/mnt/shadowfs",
			ControlPort: 9090,
			MetricsPort: 9091,
			HealthPort:  9092,
		},
		Sources:    []SourceConfig{},
		Rules:      []RuleConfig{},
		Transforms: []TransformConfig{},
		Layers:     []LayerConfig{},
		Performance: PerformanceConfig{
			MaxConcurrency:     64,
			EnumeratorWorkers:  8,
			TransformMemoryCap: "256MB",
		},
		Cache: CacheConfig{
			L1MaxEntries: 10000,
			L1TTL:        60 * time.Second,
			L2MaxSize:    "512MB",
			L3MaxSize:    "512MB",
		},
		Limits: LimitsConfig{
			MaxFileSize:          "1GB",
			MaxTransformOutput:   "100MB",
			MaxTransformWallTime: 30 * time.Second,
			MaxSymlinkDepth:      10,
		},
		WriteBuffer: WriteBufferConfig{
			Enabled:       false,
			FlushInterval: 5 * time.Second,
			FlushSize:     "4MB",
			MaxBuffers:    256,
		},
		Network: NetworkConfig{
			Timeouts: TimeoutConfig{
				Read:  30 * time.Second,
				Write: 30 * time.Second,
				Stat:  5 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   100 * time.Millisecond,
				MaxDelay:    2 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				CustomLabels: map[string]string{
					"service": "shadowfs",
				},
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  true,
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "json",
			},
		},
		Features: FeatureConfig{
			WriteThrough:    false,
			MetadataCaching: true,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overlays environment variables onto the configuration.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("SHADOWFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("SHADOWFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("SHADOWFS_MOUNT_POINT"); val != "" {
		c.Global.MountPoint = val
	}
	if val := os.Getenv("SHADOWFS_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}
	if val := os.Getenv("SHADOWFS_MAX_CONCURRENCY"); val != "" {
		if concurrency, err := strconv.Atoi(val); err == nil {
			c.Performance.MaxConcurrency = concurrency
		}
	}
	if val := os.Getenv("SHADOWFS_CACHE_L1_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.L1TTL = duration
		}
	}
	if val := os.Getenv("SHADOWFS_WRITE_THROUGH"); val != "" {
		c.Features.WriteThrough = strings.ToLower(val) == "true"
		c.WriteBuffer.Enabled = c.Features.WriteThrough
	}
	if val := os.Getenv("SHADOWFS_METADATA_CACHING"); val != "" {
		c.Features.MetadataCaching = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Configuration) Validate() error {
	if c.Performance.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be greater than 0")
	}

	if c.Limits.MaxSymlinkDepth <= 0 {
		return fmt.Errorf("limits.max_symlink_depth must be greater than 0")
	}

	if c.Global.MetricsPort == c.Global.HealthPort {
		return fmt.Errorf("metrics_port and health_port cannot be the same")
	}
	if c.Global.MetricsPort == c.Global.ControlPort {
		return fmt.Errorf("metrics_port and control_port cannot be the same")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	names := make(map[string]bool)
	for _, s := range c.Sources {
		if s.Name == "" || s.Path == "" {
			return fmt.Errorf("source %q: name and path are required", s.Name)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate source name: %s", s.Name)
		}
		names[s.Name] = true
	}

	transformNames := make(map[string]bool)
	for _, t := range c.Transforms {
		if t.Name == "" {
			return fmt.Errorf("transform config missing name")
		}
		transformNames[t.Name] = true
	}

	for _, r := range c.Rules {
		if r.Action != "include" && r.Action != "exclude" {
			return fmt.Errorf("rule %q: action must be include or exclude, got %q", r.Name, r.Action)
		}
		if r.PatternKind != "glob" && r.PatternKind != "regex" {
			return fmt.Errorf("rule %q: pattern_kind must be glob or regex, got %q", r.Name, r.PatternKind)
		}
		for _, tname := range r.Transforms {
			if !transformNames[tname] {
				return fmt.Errorf("rule %q references undefined transform %q", r.Name, tname)
			}
		}
	}

	layerNames := make(map[string]bool)
	for _, l := range c.Layers {
		if l.Name == "" || l.MountPoint == "" {
			return fmt.Errorf("layer %q: name and mount_point are required", l.Name)
		}
		if layerNames[l.Name] {
			return fmt.Errorf("duplicate layer name: %s", l.Name)
		}
		layerNames[l.Name] = true
		if !names[l.SourceRoot] {
			return fmt.Errorf("layer %q references undefined source root %q", l.Name, l.SourceRoot)
		}
		if l.Kind == "date" {
			if field, ok := l.Params["field"]; ok && field != "" && field != "mtime" {
				return fmt.Errorf("layer %q: date layer only supports field \"mtime\" (ctime/atime are not tracked)", l.Name)
			}
		}
	}

	return nil
}
