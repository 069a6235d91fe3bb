package transform

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
)

// NamedStage pairs a Stage with the glob it applies to.
type NamedStage struct {
	Glob  string
	Stage Stage
}

// MemoryTracker receives live byte-count adjustments while a pipeline
// runs, so a process-wide budget (pkg/memmon) sees in-flight transform
// memory in addition to the per-call Limits.MaxInputSize/MaxOutputSize
// enforced by each stage.
type MemoryTracker interface {
	IncrementObject(name string, size int64)
	DecrementObject(name string, size int64)
}

// trackedObjectName is the pkg/memmon tracked-object name internal/adapter
// registers a budget for via memmon.MemoryMonitor.TrackObject.
const trackedObjectName = "transform_pipeline"

// Pipeline applies an ordered chain of stages to a path's content. The
// subset of stages applicable to a given path is selected once and
// memoized, keyed by path.
type Pipeline struct {
	all    []NamedStage
	limits Limits
	mem    MemoryTracker

	mu       sync.Mutex
	selected map[string][]NamedStage
}

// New builds a Pipeline over the given ordered stage list.
func New(stages []NamedStage, limits Limits) *Pipeline {
	def := DefaultLimits()
	if limits.MaxInputSize == 0 {
		limits.MaxInputSize = def.MaxInputSize
	}
	if limits.MaxOutputSize == 0 {
		limits.MaxOutputSize = def.MaxOutputSize
	}
	if limits.WallClock == 0 {
		limits.WallClock = def.WallClock
	}
	if limits.MemoryBudget == 0 {
		limits.MemoryBudget = def.MemoryBudget
	}
	return &Pipeline{
		all:      stages,
		limits:   limits,
		selected: make(map[string][]NamedStage),
	}
}

// SetMemoryTracker attaches the budget tracker every Apply call reports
// its input size to for the pipeline's duration. Without one, Apply
// just skips the bookkeeping.
func (p *Pipeline) SetMemoryTracker(m MemoryTracker) {
	p.mem = m
}

// stagesFor returns the ordered subset of stages whose glob matches
// path, computing and caching it on first use.
func (p *Pipeline) stagesFor(path string, matches func(glob, path string) (bool, error)) ([]NamedStage, error) {
	p.mu.Lock()
	if cached, ok := p.selected[path]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	var out []NamedStage
	for _, ns := range p.all {
		ok, err := matches(ns.Glob, path)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ns)
		}
	}

	p.mu.Lock()
	p.selected[path] = out
	p.mu.Unlock()
	return out, nil
}

// HasStages reports whether any configured stage applies to path,
// without running any of them. Used by callers deciding whether a
// read needs to consult the transformed-content cache level at all.
func (p *Pipeline) HasStages(path string, matches func(glob, path string) (bool, error)) (bool, error) {
	stages, err := p.stagesFor(path, matches)
	if err != nil {
		return false, err
	}
	return len(stages) > 0, nil
}

// Apply runs every stage selected for path, in order, over data. It
// returns the final bytes, whether any stage degraded to pass-through,
// and an error only when a fatal-configured stage failed.
func (p *Pipeline) Apply(ctx context.Context, path string, data []byte, matches func(glob, path string) (bool, error)) ([]byte, bool, error) {
	stages, err := p.stagesFor(path, matches)
	if err != nil {
		return nil, false, err
	}

	if p.mem != nil {
		p.mem.IncrementObject(trackedObjectName, int64(len(data)))
		defer p.mem.DecrementObject(trackedObjectName, int64(len(data)))
	}

	degraded := false
	cur := data
	for _, ns := range stages {
		if int64(len(cur)) > p.limits.MaxInputSize {
			if ns.Stage.Fatal() {
				return nil, false, shadowerrors.New(shadowerrors.CodeTransformFailed, "input exceeds stage limit").
					WithComponent("transform").WithOperation(ns.Stage.Name())
			}
			degraded = true
			continue
		}

		result, outErr := applyWithBudget(ctx, ns.Stage, PathContext{Path: path, Ctx: ctx}, cur, p.limits)
		if outErr != nil {
			return nil, false, outErr
		}
		if result.Degraded {
			degraded = true
		}
		cur = result.Data
	}
	return cur, degraded, nil
}

func applyWithBudget(ctx context.Context, s Stage, pc PathContext, data []byte, limits Limits) (Outcome, error) {
	budget := limits.WallClock
	if budget <= 0 {
		budget = DefaultLimits().WallClock
	}

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.Apply(pc, data, limits)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(budget):
		return degradeOrFail(s, data, fmt.Sprintf("%s: exceeded wall-clock budget", s.Name()), nil)
	case <-ctx.Done():
		return degradeOrFail(s, data, fmt.Sprintf("%s: context canceled", s.Name()), ctx.Err())
	}
}

// Fingerprint returns a stable hash of the stages selected for path,
// identifying both which transforms apply and with what parameters.
// It keys the L3 transformed-content cache.
func (p *Pipeline) Fingerprint(path string, matches func(glob, path string) (bool, error)) (uint64, error) {
	stages, err := p.stagesFor(path, matches)
	if err != nil {
		return 0, err
	}

	h := xxhash.New()
	for _, ns := range stages {
		_, _ = h.Write([]byte(ns.Glob))
		_, _ = h.Write([]byte(ns.Stage.Name()))
		// %#v covers stage parameters (compression level, render context)
		// so two pipelines differing only in parameters key distinct L3
		// entries.
		_, _ = fmt.Fprintf(h, "%#v", ns.Stage)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(len(ns.Glob)))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64(), nil
}

// InvalidatePath drops a path's memoized stage selection. The Resolver
// calls it after a mutating operation on the path and on explicit
// cache invalidation.
func (p *Pipeline) InvalidatePath(path string) {
	p.mu.Lock()
	delete(p.selected, path)
	p.mu.Unlock()
}
