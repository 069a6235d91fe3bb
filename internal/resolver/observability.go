package resolver

import (
	"context"
	"time"

	"github.com/shadowfs/shadowfs/internal/circuit"
	"github.com/shadowfs/shadowfs/pkg/retry"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// SetMetrics attaches the types.MetricsCollector the Resolver reports
// every getattr/open/read/write outcome and every cache level hit/miss
// to. A Resolver with no recorder attached (the zero value) silently
// skips recording; this lets tests and callers that don't care about
// metrics build a Resolver with resolver.New alone.
func (r *Resolver) SetMetrics(m types.MetricsCollector) {
	r.metrics = m
}

// SetBackingResilience attaches the retry/circuit-breaker pair that
// guards backing I/O (stat, open, read, write) per source root. Without
// it, backing calls are issued directly with no retry or breaker.
func (r *Resolver) SetBackingResilience(retryer *retry.Retryer, breakers *circuit.Manager) {
	r.ioRetry = retryer
	r.ioBreakers = breakers
}

func (r *Resolver) recordOp(operation string, start time.Time, size int64, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordOperation(operation, time.Since(start), size, err == nil)
	if err != nil {
		r.metrics.RecordError(operation, err)
	}
}

func (r *Resolver) recordCacheHit(level string, size int64) {
	if r.metrics != nil {
		r.metrics.RecordCacheHit(level, size)
	}
}

func (r *Resolver) recordCacheMiss(level string) {
	if r.metrics != nil {
		r.metrics.RecordCacheMiss(level, 0)
	}
}

// guardBackingIO runs fn, wrapped in the per-source-root circuit
// breaker and retry policy when SetBackingResilience has been called;
// otherwise it calls fn directly. sourceRoot is the breaker key, so a
// flapping source root trips independently of the others.
func (r *Resolver) guardBackingIO(ctx context.Context, sourceRoot string, fn func() error) error {
	if r.ioRetry == nil || r.ioBreakers == nil {
		return fn()
	}
	breaker := r.ioBreakers.GetBreaker(sourceRoot)
	return breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return r.ioRetry.DoWithContext(ctx, func(ctx context.Context) error {
			return fn()
		})
	})
}
