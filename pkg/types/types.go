// Package types holds the core data model shared across ShadowFS
// components: file metadata, source roots, rules, transforms, virtual
// layers, and cache statistics.
package types

import (
	"time"

	"github.com/shadowfs/shadowfs/internal/config"
)

// FileInfo describes a resolved path, whether it came from a backing
// directory tree or a virtual layer.
type FileInfo struct {
	Path       string            `json:"path"`
	Size       int64             `json:"size"`
	Mode       uint32            `json:"mode"`
	IsDir      bool              `json:"is_dir"`
	IsVirtual  bool              `json:"is_virtual"`
	ModTime    time.Time         `json:"mtime"`
	BackingKey string            `json:"backing_key,omitempty"`
	SourceRoot string            `json:"source_root,omitempty"`
	LayerName  string            `json:"layer_name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SourceRoot is one backing directory tree ShadowFS enumerates and
// resolves paths against.
type SourceRoot struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	ReadOnly bool   `json:"read_only"`
}

// RuleAction is the verdict a Rule Engine predicate produces.
type RuleAction string

const (
	RuleInclude RuleAction = "include"
	RuleExclude RuleAction = "exclude"
)

// Rule is one ordered include/exclude predicate in the Rule Engine.
type Rule struct {
	Name        string     `json:"name"`
	Pattern     string     `json:"pattern"`
	PatternKind string     `json:"pattern_kind"` // "glob" or "regex"
	Action      RuleAction `json:"action"`
	Transforms  []string   `json:"transforms,omitempty"`
}

// TransformKind names one of the built-in transform stage families.
type TransformKind string

const (
	TransformGzip     TransformKind = "gzip"
	TransformBzip2    TransformKind = "bzip2"
	TransformZstd     TransformKind = "zstd"
	TransformBrotli   TransformKind = "brotli"
	TransformLZMA     TransformKind = "lzma"
	TransformMarkdown TransformKind = "markdown_html"
	TransformCSVJSON  TransformKind = "csv_json"
	TransformYAMLJSON TransformKind = "yaml_json"
	TransformTemplate TransformKind = "template"
)

// Transform configures one stage of a transform pipeline.
type Transform struct {
	Name   string                 `json:"name"`
	Kind   TransformKind          `json:"kind"`
	Params map[string]interface{} `json:"params,omitempty"`
	Fatal  bool                   `json:"fatal"`
}

// LayerKind names one of the virtual layer variants.
type LayerKind string

const (
	LayerClassifier   LayerKind = "classifier"
	LayerDate         LayerKind = "date"
	LayerTag          LayerKind = "tag"
	LayerHierarchical LayerKind = "hierarchical"
)

// LayerState is the lifecycle state of a virtual layer's index.
type LayerState string

const (
	LayerEmpty LayerState = "empty"
	LayerBuilt LayerState = "built"
	LayerStale LayerState = "stale"
)

// VirtualLayer is the introspection record for one mounted synthetic
// view, surfaced by the control plane's GET /layers.
type VirtualLayer struct {
	Name  string     `json:"name"`
	Kind  LayerKind  `json:"kind"`
	State LayerState `json:"state"`
}

// CacheStats reports hit/miss/eviction counters for one cache level.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// Range represents a byte range within a file.
type Range struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

// Configuration type aliases re-exported from internal/config so callers
// outside the config package can reference the document shape without a
// direct import cycle back into internal/config.
type (
	Configuration        = config.Configuration
	GlobalConfig         = config.GlobalConfig
	PerformanceConfig    = config.PerformanceConfig
	CacheConfig          = config.CacheConfig
	LimitsConfig         = config.LimitsConfig
	WriteBufferConfig    = config.WriteBufferConfig
	NetworkConfig        = config.NetworkConfig
	TimeoutConfig        = config.TimeoutConfig
	RetryConfig          = config.RetryConfig
	CircuitBreakerConfig = config.CircuitBreakerConfig
	MonitoringConfig     = config.MonitoringConfig
	MetricsConfig        = config.MetricsConfig
	HealthChecksConfig   = config.HealthChecksConfig
	LoggingConfig        = config.LoggingConfig
	FeatureConfig        = config.FeatureConfig
	SourceConfig         = config.SourceConfig
	RuleConfig           = config.RuleConfig
	TransformConfig      = config.TransformConfig
	LayerConfig          = config.LayerConfig
)
