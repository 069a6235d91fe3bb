// Package rules implements the Rule Engine: an ordered list of
// include/exclude predicates evaluated first-match-wins against a path
// and its attributes.
package rules

import (
	"sync"
	"time"

	"github.com/shadowfs/shadowfs/internal/pattern"
	"github.com/shadowfs/shadowfs/pkg/types"
)

// Visibility is the Rule Engine's verdict for a path.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

// Attrs is the subset of file attributes a predicate can inspect.
type Attrs struct {
	Size    int64
	ModTime time.Time
	Mode    uint32
	IsDir   bool
}

// SizeRange bounds Attrs.Size; a zero value on either end means
// unbounded on that side.
type SizeRange struct {
	Min int64
	Max int64
}

// TimeRange bounds Attrs.ModTime; a zero Time on either end means
// unbounded on that side.
type TimeRange struct {
	After  time.Time
	Before time.Time
}

// Predicate is a conjunction of sub-predicates; every non-zero field
// must hold for the predicate to match. Evaluation short-circuits on
// the first false sub-predicate.
type Predicate struct {
	Pattern     string
	PatternKind pattern.Kind
	Size        *SizeRange
	ModTime     *TimeRange
	ModeMask    *uint32 // if set, path.Mode & ModeMask must be nonzero
}

func (p *Predicate) matches(path string, attrs Attrs) (bool, error) {
	if p.Pattern != "" {
		ok, err := pattern.Match(p.PatternKind, p.Pattern, path)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if p.Size != nil {
		if p.Size.Min != 0 && attrs.Size < p.Size.Min {
			return false, nil
		}
		if p.Size.Max != 0 && attrs.Size > p.Size.Max {
			return false, nil
		}
	}
	if p.ModTime != nil {
		if !p.ModTime.After.IsZero() && attrs.ModTime.Before(p.ModTime.After) {
			return false, nil
		}
		if !p.ModTime.Before.IsZero() && attrs.ModTime.After(p.ModTime.Before) {
			return false, nil
		}
	}
	if p.ModeMask != nil && attrs.Mode&*p.ModeMask == 0 {
		return false, nil
	}
	return true, nil
}

// Rule pairs a Predicate with the verdict it produces and the named
// transforms applied when it wins.
type Rule struct {
	Name       string
	Action     types.RuleAction
	Predicate  Predicate
	Transforms []string
}

// Engine holds the ordered rule list evaluated by Decide. Decide takes
// the read lock so the control plane can Add/Remove rules while
// resolves are in flight.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewEngine constructs a Rule Engine from an ordered rule list. The
// slice is copied; mutate via Add/Remove.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.rules = append(e.rules, rules...)
	return e
}

// Decide evaluates the rule list in order against path and attrs. The
// first rule whose predicate matches determines the verdict; if none
// match, the default is Visible. Side-effect free: performs no I/O.
func (e *Engine) Decide(path string, attrs Attrs) (Visibility, *Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.rules {
		r := &e.rules[i]
		ok, err := r.Predicate.matches(path, attrs)
		if err != nil {
			return Hidden, nil, err
		}
		if ok {
			if r.Action == types.RuleExclude {
				return Hidden, r, nil
			}
			return Visible, r, nil
		}
	}
	return Visible, nil, nil
}

// Rules returns a snapshot of the current ordered rule list.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Add appends a rule to the end of the evaluation order.
func (e *Engine) Add(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// Remove deletes the named rule, if present, and reports whether a
// rule was removed.
func (e *Engine) Remove(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.Name == name {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}
