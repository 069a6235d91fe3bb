// Package transform implements the Transform Stage and Pipeline: an
// ordered chain of content transforms applied over the entire byte
// buffer of a backing file before it is served to a reader.
package transform

import (
	"context"
	"time"
)

// Outcome distinguishes a successfully transformed buffer from a
// degraded pass-through of the original bytes.
type Outcome struct {
	Data     []byte
	Degraded bool
	Reason   string
}

// PathContext carries the metadata a stage may need beyond the bytes
// themselves.
type PathContext struct {
	Path string
	Ctx  context.Context
}

// Limits bounds one stage's resource consumption. Zero fields fall
// back to the package defaults when the Limits is passed to New.
type Limits struct {
	MaxInputSize  int64
	MaxOutputSize int64
	WallClock     time.Duration
	MemoryBudget  int64
}

// DefaultLimits returns conservative per-stage resource limits.
func DefaultLimits() Limits {
	return Limits{
		MaxInputSize:  1 << 30,   // 1 GiB
		MaxOutputSize: 100 << 20, // 100 MiB
		WallClock:     30 * time.Second,
		MemoryBudget:  100 << 20, // 100 MiB
	}
}

// Stage is one named, independently-configured step of a Pipeline.
type Stage interface {
	// Name identifies the stage for fingerprinting and logging.
	Name() string
	// Apply transforms data, honoring limits. A non-nil error is only
	// returned for a fatal-configured stage failure; otherwise a
	// degraded Outcome is returned with the original bytes.
	Apply(pc PathContext, data []byte, limits Limits) (Outcome, error)
	// Fatal reports whether this stage's failures should fail the
	// whole read rather than degrade to pass-through.
	Fatal() bool
}
