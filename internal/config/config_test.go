package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testDebugLevel = "DEBUG"

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 9091 {
		t.Errorf("Expected MetricsPort to be 9091, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Global.HealthPort != 9092 {
		t.Errorf("Expected HealthPort to be 9092, got %d", cfg.Global.HealthPort)
	}

	if cfg.Performance.MaxConcurrency != 64 {
		t.Errorf("Expected MaxConcurrency to be 64, got %d", cfg.Performance.MaxConcurrency)
	}

	if cfg.Cache.L1TTL != 60*time.Second {
		t.Errorf("Expected Cache L1TTL to be 60s, got %v", cfg.Cache.L1TTL)
	}
	if cfg.Cache.L1MaxEntries != 10000 {
		t.Errorf("Expected L1MaxEntries to be 10000, got %d", cfg.Cache.L1MaxEntries)
	}

	if cfg.Limits.MaxSymlinkDepth != 10 {
		t.Errorf("Expected MaxSymlinkDepth to be 10, got %d", cfg.Limits.MaxSymlinkDepth)
	}
	if cfg.Limits.MaxTransformWallTime != 30*time.Second {
		t.Errorf("Expected MaxTransformWallTime to be 30s, got %v", cfg.Limits.MaxTransformWallTime)
	}

	if cfg.Features.WriteThrough {
		t.Error("Expected WriteThrough to be disabled by default")
	}
	if !cfg.Features.MetadataCaching {
		t.Error("Expected MetadataCaching to be enabled by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Configuration
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			config: func() *Configuration { return NewDefault() },
		},
		{
			name: "invalid max concurrency",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Performance.MaxConcurrency = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "max_concurrency must be greater than 0",
		},
		{
			name: "same metrics and health ports",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.MetricsPort = 9091
				cfg.Global.HealthPort = 9091
				return cfg
			},
			wantErr: true,
			errMsg:  "metrics_port and health_port cannot be the same",
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Global.LogLevel = "INVALID"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log_level",
		},
		{
			name: "source missing path",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Sources = []SourceConfig{{Name: "docs"}}
				return cfg
			},
			wantErr: true,
			errMsg:  "name and path are required",
		},
		{
			name: "duplicate source name",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Sources = []SourceConfig{
					{Name: "docs", Path: "/a"},
					{Name: "docs", Path: "/b"},
				}
				return cfg
			},
			wantErr: true,
			errMsg:  "duplicate source name",
		},
		{
			name: "rule references unknown transform",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Rules = []RuleConfig{{
					Name: "r1", Pattern: "*.md", PatternKind: "glob", Action: "include",
					Transforms: []string{"missing"},
				}}
				return cfg
			},
			wantErr: true,
			errMsg:  "undefined transform",
		},
		{
			name: "layer references unknown source",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Layers = []LayerConfig{{Name: "by-type", MountPoint: "/by-type", Kind: "classifier", SourceRoot: "missing"}}
				return cfg
			},
			wantErr: true,
			errMsg:  "undefined source root",
		},
		{
			name: "date layer rejects non-mtime field",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Sources = []SourceConfig{{Name: "docs", Path: "/a"}}
				cfg.Layers = []LayerConfig{{
					Name: "by-date", MountPoint: "/by-date", Kind: "date", SourceRoot: "docs",
					Params: map[string]string{"field": "ctime"},
				}}
				return cfg
			},
			wantErr: true,
			errMsg:  "date layer only supports field",
		},
		{
			name: "zero symlink depth",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Limits.MaxSymlinkDepth = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "max_symlink_depth",
		},
		{
			name: "selector-driven transform needs no rule",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Transforms = []TransformConfig{{
					Name: "md", Selector: "**/*.md", Kind: "markdown_html",
				}}
				return cfg
			},
		},
		{
			name: "date layer accepts mtime field",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Sources = []SourceConfig{{Name: "docs", Path: "/a"}}
				cfg.Layers = []LayerConfig{{
					Name: "by-date", MountPoint: "/by-date", Kind: "date", SourceRoot: "docs",
					Params: map[string]string{"field": "mtime"},
				}}
				return cfg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
global:
  log_level: DEBUG
  metrics_port: 19090
  health_port: 19091

sources:
  - name: docs
    path: /srv/docs
    priority: 2
    read_only: true

performance:
  max_concurrency: 200

features:
  metadata_caching: false
`

	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Global.LogLevel != testDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 19090 {
		t.Errorf("Expected MetricsPort to be 19090, got %d", cfg.Global.MetricsPort)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "docs" {
		t.Fatalf("Expected one source named docs, got %+v", cfg.Sources)
	}
	if cfg.Sources[0].Priority != 2 {
		t.Errorf("Expected source priority 2, got %d", cfg.Sources[0].Priority)
	}
	if cfg.Performance.MaxConcurrency != 200 {
		t.Errorf("Expected MaxConcurrency to be 200, got %d", cfg.Performance.MaxConcurrency)
	}
	if cfg.Features.MetadataCaching {
		t.Error("Expected MetadataCaching to be false")
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"SHADOWFS_LOG_LEVEL":        "ERROR",
		"SHADOWFS_METRICS_PORT":     "19090",
		"SHADOWFS_MAX_CONCURRENCY":  "300",
		"SHADOWFS_CACHE_L1_TTL":     "10m",
		"SHADOWFS_WRITE_THROUGH":    "true",
		"SHADOWFS_METADATA_CACHING": "false",
	}

	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != "ERROR" {
		t.Errorf("Expected LogLevel to be ERROR, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsPort != 19090 {
		t.Errorf("Expected MetricsPort to be 19090, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Performance.MaxConcurrency != 300 {
		t.Errorf("Expected MaxConcurrency to be 300, got %d", cfg.Performance.MaxConcurrency)
	}
	if cfg.Cache.L1TTL != 10*time.Minute {
		t.Errorf("Expected Cache L1TTL to be 10 minutes, got %v", cfg.Cache.L1TTL)
	}
	if !cfg.Features.WriteThrough {
		t.Error("Expected WriteThrough to be true")
	}
	if cfg.Features.MetadataCaching {
		t.Error("Expected MetadataCaching to be false")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "saved_config.yaml")

	cfg := NewDefault()
	cfg.Global.LogLevel = testDebugLevel
	cfg.Sources = []SourceConfig{{Name: "docs", Path: "/srv/docs"}}

	if err := cfg.SaveToFile(configFile); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	newCfg := NewDefault()
	if err := newCfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if newCfg.Global.LogLevel != testDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", newCfg.Global.LogLevel)
	}
	if len(newCfg.Sources) != 1 || newCfg.Sources[0].Name != "docs" {
		t.Errorf("Expected source docs to round-trip, got %+v", newCfg.Sources)
	}
}

func TestSaveToFileCreateDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := NewDefault()
	if err := cfg.SaveToFile(configFile); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}
	if _, err := os.Stat(filepath.Dir(configFile)); os.IsNotExist(err) {
		t.Error("Config directory was not created")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
