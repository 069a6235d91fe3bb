package adapter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shadowfs/shadowfs/internal/cache"
	"github.com/shadowfs/shadowfs/internal/circuit"
	"github.com/shadowfs/shadowfs/internal/config"
	"github.com/shadowfs/shadowfs/internal/enumerator"
	"github.com/shadowfs/shadowfs/internal/fuse"
	"github.com/shadowfs/shadowfs/internal/layermanager"
	"github.com/shadowfs/shadowfs/internal/layers"
	"github.com/shadowfs/shadowfs/internal/metrics"
	"github.com/shadowfs/shadowfs/internal/pattern"
	"github.com/shadowfs/shadowfs/internal/resolver"
	"github.com/shadowfs/shadowfs/internal/rules"
	"github.com/shadowfs/shadowfs/internal/transform"
	"github.com/shadowfs/shadowfs/pkg/api"
	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
	"github.com/shadowfs/shadowfs/pkg/health"
	"github.com/shadowfs/shadowfs/pkg/memmon"
	"github.com/shadowfs/shadowfs/pkg/retry"
	"github.com/shadowfs/shadowfs/pkg/status"
	"github.com/shadowfs/shadowfs/pkg/types"
	"github.com/shadowfs/shadowfs/pkg/utils"
	"go.uber.org/multierr"
)

// Adapter is the daemon-level coordination point: it builds the Rule
// Engine, Transform Pipeline, Layer Manager and its Virtual Layers, and
// multi-level Cache from a Configuration, wires them into a Resolver,
// and then brings up the kernel-facing mount and the control, metrics,
// and health surfaces around it.
type Adapter struct {
	mountPoint string
	cfg        *config.Configuration
	logger     *utils.StructuredLogger

	layerMgr *layermanager.Manager
	pipeline *transform.Pipeline
	store    *cache.Store
	ops      *resolver.Resolver

	mountMgr  fuse.PlatformFileSystem
	metricsC  *metrics.Collector
	healthT   *health.Tracker
	statusT   *status.Tracker
	apiServer *api.Server
	memMon    *memmon.MemoryMonitor

	scanRetry   *retry.Retryer
	scanBreaker *circuit.CircuitBreaker

	ioRetry    *retry.Retryer
	ioBreakers *circuit.Manager

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates cfg and constructs an Adapter bound to mountPoint. It
// does not touch the backing trees or the kernel mount table; call
// Start for that.
func New(ctx context.Context, mountPoint string, cfg *config.Configuration) (*Adapter, error) {
	if mountPoint == "" {
		return nil, fmt.Errorf("mount point cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := utils.ParseLogLevel(cfg.Global.LogLevel)
	if err != nil {
		level = utils.INFO
	}
	loggerCfg := utils.DefaultStructuredLoggerConfig()
	loggerCfg.Level = level
	if cfg.Global.LogFile != "" {
		loggerCfg.Format = utils.FormatJSON
		loggerCfg.Rotation = &utils.RotationConfig{
			Filename:   cfg.Global.LogFile,
			MaxSize:    100,
			MaxAge:     28,
			MaxBackups: 7,
			Compress:   true,
		}
	}
	logger, err := utils.NewStructuredLogger(loggerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &Adapter{
		mountPoint: mountPoint,
		cfg:        cfg,
		logger:     logger.WithComponent("adapter"),
	}, nil
}

// Start builds the full component graph from the Configuration,
// performs the initial backing scan, and mounts the filesystem.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("adapter already started")
	}

	a.logger.Info("starting shadowfs adapter", map[string]interface{}{
		"mount_point": a.mountPoint,
		"sources":     len(a.cfg.Sources),
		"layers":      len(a.cfg.Layers),
	})

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	var err error
	a.metricsC, err = metrics.NewCollector(&metrics.Config{
		Enabled:   a.cfg.Monitoring.Metrics.Enabled,
		Port:      a.cfg.Global.MetricsPort,
		Path:      "/metrics",
		Namespace: "shadowfs",
		Labels:    a.cfg.Monitoring.Metrics.CustomLabels,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to initialize metrics collector: %w", err)
	}
	if err := a.metricsC.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start metrics collector: %w", err)
	}

	// Sort by ascending priority value; the Layer Manager treats list
	// order as collision precedence, earliest wins.
	cfgSources := append([]config.SourceConfig(nil), a.cfg.Sources...)
	sort.SliceStable(cfgSources, func(i, j int) bool { return cfgSources[i].Priority < cfgSources[j].Priority })
	sources := make([]types.SourceRoot, 0, len(cfgSources))
	for _, s := range cfgSources {
		sources = append(sources, types.SourceRoot{Name: s.Name, Path: s.Path, ReadOnly: s.ReadOnly})
	}

	enumOpts := enumerator.DefaultOptions()
	if a.cfg.Performance.EnumeratorWorkers > 0 {
		enumOpts.MaxConcurrency = a.cfg.Performance.EnumeratorWorkers
	}
	enumOpts.MaxSymlinkDepth = a.cfg.Limits.MaxSymlinkDepth
	enumOpts.OnSkip = func(path string, skipErr error) {
		a.logger.Warn("skipped entry during enumeration", map[string]interface{}{"path": path, "error": skipErr.Error()})
	}

	a.layerMgr = layermanager.New(sources, enumOpts)

	ruleEngine, err := buildRuleEngine(a.cfg.Rules)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build rule engine: %w", err)
	}

	a.pipeline, err = buildPipeline(a.cfg, a.logger)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build transform pipeline: %w", err)
	}

	l2, err := cacheLevelConfig(a.cfg.Cache.L2MaxSize)
	if err != nil {
		cancel()
		return fmt.Errorf("invalid cache.l2_max_size: %w", err)
	}
	l3, err := cacheLevelConfig(a.cfg.Cache.L3MaxSize)
	if err != nil {
		cancel()
		return fmt.Errorf("invalid cache.l3_max_size: %w", err)
	}
	a.store = cache.NewStore(a.cfg.Cache.L1MaxEntries, a.cfg.Cache.L1TTL, l2, l3)

	a.ops = resolver.New(a.layerMgr, ruleEngine, a.pipeline, a.store, a.cfg.Features.WriteThrough)
	a.ops.SetMetrics(a.metricsC)
	if maxFile, err := parseByteSize(a.cfg.Limits.MaxFileSize); err == nil {
		a.ops.SetMaxFileSize(maxFile)
	}

	a.ioRetry = retry.New(retry.Config{
		MaxAttempts:     a.cfg.Network.Retry.MaxAttempts,
		InitialDelay:    a.cfg.Network.Retry.BaseDelay,
		MaxDelay:        a.cfg.Network.Retry.MaxDelay,
		Multiplier:      2.0,
		Jitter:          true,
		RetryableErrors: retry.DefaultConfig().RetryableErrors,
	})
	a.ioBreakers = circuit.NewManager(circuit.Config{
		MaxRequests: 1,
		Interval:    a.cfg.Monitoring.HealthChecks.Interval,
		Timeout:     a.cfg.Network.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts circuit.Counts) bool {
			return a.cfg.Network.CircuitBreaker.Enabled &&
				int(counts.ConsecutiveFailures) >= a.cfg.Network.CircuitBreaker.FailureThreshold
		},
	})
	a.ops.SetBackingResilience(a.ioRetry, a.ioBreakers)

	for _, lc := range a.cfg.Layers {
		layer, err := buildLayer(lc, a.layerMgr)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to build layer %q: %w", lc.Name, err)
		}
		if err := a.layerMgr.AddLayer(layer); err != nil {
			cancel()
			return fmt.Errorf("failed to register layer %q: %w", lc.Name, err)
		}
	}

	a.scanRetry = retry.New(retry.Config{
		MaxAttempts:     a.cfg.Network.Retry.MaxAttempts,
		InitialDelay:    a.cfg.Network.Retry.BaseDelay,
		MaxDelay:        a.cfg.Network.Retry.MaxDelay,
		Multiplier:      2.0,
		Jitter:          true,
		RetryableErrors: retry.DefaultConfig().RetryableErrors,
	})
	a.scanBreaker = circuit.NewCircuitBreaker("backing-scan", circuit.Config{
		MaxRequests: 1,
		Interval:    a.cfg.Monitoring.HealthChecks.Interval,
		Timeout:     a.cfg.Network.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts circuit.Counts) bool {
			return a.cfg.Network.CircuitBreaker.Enabled &&
				int(counts.ConsecutiveFailures) >= a.cfg.Network.CircuitBreaker.FailureThreshold
		},
	})

	a.healthT = health.NewTracker(health.DefaultConfig())
	a.healthT.RegisterComponent("sources")
	a.healthT.RegisterComponent("mount")
	a.healthT.RegisterComponent("memory")
	a.statusT = status.NewTracker(status.TrackerConfig{MaxHistorySize: 1000, HealthTracker: a.healthT})

	if err := a.rescan(runCtx); err != nil {
		a.logger.Error("initial backing scan failed", map[string]interface{}{"error": err.Error()})
		cancel()
		return fmt.Errorf("initial backing scan failed: %w", err)
	}
	a.layerMgr.RebuildIndexes()
	for _, name := range a.layerMgr.LayerNames() {
		a.metricsC.RecordLayerRebuild(name)
	}

	fsConfig := &fuse.Config{
		MountPoint:  a.mountPoint,
		ReadOnly:    !a.cfg.Features.WriteThrough,
		DefaultMode: 0644,
		CacheTTL:    a.cfg.Cache.L1TTL,
		Concurrency: a.cfg.Performance.MaxConcurrency,
	}
	mountConfig := &fuse.MountConfig{
		MountPoint: a.mountPoint,
		Options: &fuse.MountOptions{
			ReadOnly:     !a.cfg.Features.WriteThrough,
			DefaultPerms: true,
			MaxRead:      128 * 1024,
			MaxWrite:     128 * 1024,
			FSName:       "shadowfs",
			Subtype:      "shadowfs",
			AttrTimeout:  a.cfg.Cache.L1TTL,
			EntryTimeout: a.cfg.Cache.L1TTL,
		},
	}
	a.mountMgr = fuse.CreatePlatformMountManager(a.ops, fsConfig, mountConfig)
	if err := a.mountMgr.Mount(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}
	a.healthT.RecordSuccess("mount")

	a.memMon = memmon.NewMemoryMonitor(memmon.MonitorConfig{
		SampleInterval: 30 * time.Second,
		AlertThreshold: 20.0,
		MaxSamples:     100,
		EnableGCStats:  true,
		Logger:         a.logger,
	})
	if transformCap, err := parseByteSize(a.cfg.Performance.TransformMemoryCap); err == nil {
		a.memMon.TrackObject("transform_pipeline", transformCap)
	}
	if err := a.memMon.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start memory monitor: %w", err)
	}
	a.pipeline.SetMemoryTracker(a.memMon)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Address = fmt.Sprintf("0.0.0.0:%d", a.cfg.Global.ControlPort)
	serverCfg.EnableMetrics = a.cfg.Monitoring.Metrics.Enabled
	a.apiServer = api.NewServer(serverCfg, a.statusT, a.healthT, a.ops, a.Reload)
	a.apiServer.StartBackground()

	if a.cfg.Monitoring.HealthChecks.Enabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.healthT.StartHealthChecks(runCtx, a.checkComponent)
		}()
	}

	a.started = true
	a.logger.Info("shadowfs adapter started", nil)
	return nil
}

// Reload rescans every source root and rebuilds every virtual layer's
// index, without unmounting. Bound to the control plane's
// /config/reload endpoint.
func (a *Adapter) Reload() error {
	if err := a.rescan(context.Background()); err != nil {
		return err
	}
	a.layerMgr.RebuildIndexes()
	for _, name := range a.layerMgr.LayerNames() {
		a.metricsC.RecordLayerRebuild(name)
	}
	a.store.L1.Clear()
	return nil
}

// rescan re-enumerates every source root through the retry/circuit
// guard that protects the Layer Manager from a flapping or temporarily
// unreachable backing tree. Tracked as a status.Tracker operation so
// /status/operations and /status/history on the control plane report
// real scan activity instead of always coming back empty.
func (a *Adapter) rescan(ctx context.Context) error {
	var op *status.Operation
	if a.statusT != nil {
		op, ctx = a.statusT.StartOperation(ctx, "backing-scan", map[string]interface{}{
			"sources": len(a.cfg.Sources),
		})
	}

	err := a.scanBreaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return a.scanRetry.DoWithContext(ctx, a.layerMgr.ScanSources)
	})
	if err != nil {
		a.healthT.RecordError("sources", err)
		if op != nil {
			_ = a.statusT.FailOperation(op.ID, err)
		}
		return err
	}
	a.healthT.RecordSuccess("sources")
	if op != nil {
		_ = a.statusT.CompleteOperation(op.ID)
	}
	return nil
}

// checkComponent implements health.Tracker's periodic checkFn, keyed
// by the component names registered in Start.
func (a *Adapter) checkComponent(component string) error {
	switch component {
	case "sources":
		return a.rescan(context.Background())
	case "mount":
		if a.mountMgr != nil && !a.mountMgr.IsMounted() {
			return shadowerrors.New(shadowerrors.CodeSourceUnreachable, "mount manager reports unmounted").
				WithComponent("mount")
		}
		return nil
	case "memory":
		for _, alert := range a.memMon.GetAlerts() {
			if time.Since(alert.Timestamp) < a.cfg.Monitoring.HealthChecks.Interval {
				return shadowerrors.New(shadowerrors.CodeMemoryBudget, alert.Message).WithComponent("memory")
			}
		}
		return nil
	default:
		return nil
	}
}

// Stop unmounts the filesystem and shuts down every ambient subsystem.
// Stop is idempotent; calling it on a non-started Adapter is a no-op
// error, not a panic.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return fmt.Errorf("adapter not started")
	}

	a.logger.Info("stopping shadowfs adapter", nil)
	var stopErr error

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.mountMgr != nil && a.mountMgr.IsMounted() {
		if err := a.mountMgr.Unmount(); err != nil {
			a.logger.Error("error unmounting filesystem", map[string]interface{}{"error": err.Error()})
			stopErr = multierr.Append(stopErr, err)
		}
	}

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			a.logger.Error("error shutting down control server", map[string]interface{}{"error": err.Error()})
			stopErr = multierr.Append(stopErr, err)
		}
	}

	if a.memMon != nil {
		if err := a.memMon.Stop(); err != nil {
			stopErr = multierr.Append(stopErr, err)
		}
	}

	if a.metricsC != nil {
		if err := a.metricsC.Stop(ctx); err != nil {
			a.logger.Error("error stopping metrics collector", map[string]interface{}{"error": err.Error()})
			stopErr = multierr.Append(stopErr, err)
		}
	}

	a.started = false
	a.logger.Info("shadowfs adapter stopped", nil)
	return stopErr
}

// Resolver exposes the Operations Facade for callers (tests, an
// embedding main package) that need it directly rather than through
// the FUSE mount or the control plane.
func (a *Adapter) Resolver() *resolver.Resolver { return a.ops }

// buildRuleEngine translates the declarative rule list into the Rule
// Engine's Rule/Predicate shape, preserving configuration order since
// the engine evaluates first-match-wins.
func buildRuleEngine(cfgRules []config.RuleConfig) (*rules.Engine, error) {
	out := make([]rules.Rule, 0, len(cfgRules))
	for _, rc := range cfgRules {
		kind, err := patternKind(rc.PatternKind)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
		}
		action, err := ruleAction(rc.Action)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
		}
		out = append(out, rules.Rule{
			Name:       rc.Name,
			Action:     action,
			Predicate:  rules.Predicate{Pattern: rc.Pattern, PatternKind: kind},
			Transforms: rc.Transforms,
		})
	}
	return rules.NewEngine(out), nil
}

func patternKind(kind string) (pattern.Kind, error) {
	switch kind {
	case "glob":
		return pattern.Glob, nil
	case "regex":
		return pattern.Regex, nil
	default:
		return "", fmt.Errorf("unknown pattern_kind %q", kind)
	}
}

func ruleAction(action string) (types.RuleAction, error) {
	switch action {
	case "include":
		return types.RuleInclude, nil
	case "exclude":
		return types.RuleExclude, nil
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

// buildPipeline assembles the ordered stage list. Transforms declaring
// their own selector glob become standalone stages in declaration
// order; a selector-less transform applies only where a rule references
// it by name, inheriting that rule's pattern as its glob. Only
// glob-kind rules can drive transforms (the Pipeline matches a stage's
// Glob field via glob syntax); regex-kind rules that reference
// transforms are logged and skipped rather than silently misapplied.
func buildPipeline(cfg *config.Configuration, logger *utils.StructuredLogger) (*transform.Pipeline, error) {
	byName := make(map[string]config.TransformConfig, len(cfg.Transforms))
	var stages []transform.NamedStage
	for _, tc := range cfg.Transforms {
		byName[tc.Name] = tc
		if tc.Selector == "" {
			continue
		}
		stage, err := transform.NewStage(tc)
		if err != nil {
			return nil, err
		}
		stages = append(stages, transform.NamedStage{Glob: tc.Selector, Stage: stage})
	}

	for _, rc := range cfg.Rules {
		if len(rc.Transforms) == 0 {
			continue
		}
		if rc.PatternKind != "glob" {
			logger.Warn("rule references transforms but is not glob-patterned; skipping", map[string]interface{}{"rule": rc.Name})
			continue
		}
		for _, name := range rc.Transforms {
			tc, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("rule %q references undefined transform %q", rc.Name, name)
			}
			if tc.Selector != "" {
				// Already a standalone stage; attaching it again under the
				// rule's glob would run it twice on overlapping paths.
				logger.Warn("rule references a transform that has its own selector; skipping the rule attachment",
					map[string]interface{}{"rule": rc.Name, "transform": tc.Name})
				continue
			}
			stage, err := transform.NewStage(tc)
			if err != nil {
				return nil, err
			}
			stages = append(stages, transform.NamedStage{Glob: rc.Pattern, Stage: stage})
		}
	}

	limits := transform.DefaultLimits()
	if n, err := parseByteSize(cfg.Limits.MaxFileSize); err == nil {
		limits.MaxInputSize = n
	}
	if n, err := parseByteSize(cfg.Limits.MaxTransformOutput); err == nil {
		limits.MaxOutputSize = n
	}
	if cfg.Limits.MaxTransformWallTime > 0 {
		limits.WallClock = cfg.Limits.MaxTransformWallTime
	}
	return transform.New(stages, limits), nil
}

// buildLayer constructs the Indexer matching a LayerConfig's Kind and
// wraps it in a Layer. Params recognized per kind:
//   - classifier: "by" in {extension, size, mime, vcs} (default extension)
//   - date: none
//   - tag: "source" in {xattr, sidecar, both} (default both)
//   - hierarchical: "levels" as a comma-separated list drawn from the
//     same classifier names as the classifier kind
func buildLayer(lc config.LayerConfig, mgr *layermanager.Manager) (*layers.Layer, error) {
	realPathOf := func(fi layers.File) string {
		real, _ := mgr.BackingPath(fi)
		return real
	}

	kind, err := layerKind(lc.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case types.LayerClassifier:
		classifier, err := namedClassifier(lc.Params["by"], realPathOf)
		if err != nil {
			return nil, err
		}
		return layers.NewLayer(lc.Name, kind, layers.NewClassifierIndex(classifier)), nil

	case types.LayerDate:
		return layers.NewLayer(lc.Name, kind, layers.NewDateIndex()), nil

	case types.LayerTag:
		extractors := tagExtractors(lc.Params["source"])
		return layers.NewLayer(lc.Name, kind, layers.NewTagIndex(extractors, realPathOf)), nil

	case types.LayerHierarchical:
		var classifiers []layers.Classifier
		for _, name := range strings.Split(lc.Params["levels"], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			c, err := namedClassifier(name, realPathOf)
			if err != nil {
				return nil, err
			}
			classifiers = append(classifiers, c)
		}
		if len(classifiers) == 0 {
			return nil, fmt.Errorf("hierarchical layer %q requires at least one level", lc.Name)
		}
		return layers.NewLayer(lc.Name, kind, layers.NewHierarchicalIndex(classifiers)), nil

	default:
		return nil, fmt.Errorf("unhandled layer kind %q", lc.Kind)
	}
}

func layerKind(kind string) (types.LayerKind, error) {
	switch types.LayerKind(kind) {
	case types.LayerClassifier, types.LayerDate, types.LayerTag, types.LayerHierarchical:
		return types.LayerKind(kind), nil
	default:
		return "", fmt.Errorf("unknown layer kind %q", kind)
	}
}

func namedClassifier(by string, realPathOf func(layers.File) string) (layers.Classifier, error) {
	switch by {
	case "", "extension":
		return layers.ExtensionClassifier, nil
	case "size":
		return layers.SizeClassifier, nil
	case "mime":
		return layers.MimeClassifier(realPathOf), nil
	case "vcs":
		return layers.VCSStatusClassifier(realPathOf, 2*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", by)
	}
}

func tagExtractors(source string) []layers.TagExtractor {
	switch source {
	case "xattr":
		return []layers.TagExtractor{layers.XattrTagExtractor}
	case "sidecar":
		return []layers.TagExtractor{layers.SidecarTagExtractor}
	default:
		return []layers.TagExtractor{layers.XattrTagExtractor, layers.SidecarTagExtractor}
	}
}

func cacheLevelConfig(sizeStr string) (*cache.CacheConfig, error) {
	size, err := parseByteSize(sizeStr)
	if err != nil {
		return nil, err
	}
	return &cache.CacheConfig{
		MaxSize:         size,
		EvictionPolicy:  "lru",
		CleanupInterval: time.Minute,
	}, nil
}

// parseByteSize parses a human-readable byte size ("512MB", "2GiB",
// "128", a bare byte count) into a signed byte count.
func parseByteSize(sizeStr string) (int64, error) {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size")
	}

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"GIB", 1 << 30}, {"MIB", 1 << 20}, {"KIB", 1 << 10},
		{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(sizeStr, u.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, u.suffix))
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", sizeStr, err)
			}
			return int64(n * float64(u.multiplier)), nil
		}
	}

	n, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", sizeStr)
	}
	return n, nil
}
