// Package pattern implements glob and regex matching against
// normalized mount-relative paths, with compiled patterns cached by
// pattern string so rules and transforms pay the compile cost once.
package pattern

import (
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	shadowerrors "github.com/shadowfs/shadowfs/pkg/errors"
)

// Kind names the pattern language.
type Kind string

const (
	Glob  Kind = "glob"
	Regex Kind = "regex"
)

// Matcher matches normalized paths against one compiled pattern.
type Matcher struct {
	kind     Kind
	raw      string
	compiled *regexp.Regexp
}

// Matches reports whether path satisfies the compiled pattern. Glob
// matching operates on the path with its leading "/" stripped, so
// patterns are written relative to the mount root.
func (m *Matcher) Matches(path string) bool {
	trimmed := strings.TrimPrefix(path, "/")
	switch m.kind {
	case Regex:
		return m.compiled.MatchString(path)
	default:
		ok, err := doublestar.Match(m.raw, trimmed)
		return err == nil && ok
	}
}

// String returns the original pattern text.
func (m *Matcher) String() string { return m.raw }

type cacheKey struct {
	kind Kind
	raw  string
}

var (
	mu    sync.RWMutex
	cache = make(map[cacheKey]*Matcher)
)

// Compile compiles (or returns a cached compilation of) the given
// pattern. Glob patterns support "?", "*", "**", and character classes
// via doublestar; regex patterns use Go's RE2 syntax.
func Compile(kind Kind, raw string) (*Matcher, error) {
	key := cacheKey{kind: kind, raw: raw}

	mu.RLock()
	if m, ok := cache[key]; ok {
		mu.RUnlock()
		return m, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if m, ok := cache[key]; ok {
		return m, nil
	}

	m := &Matcher{kind: kind, raw: raw}
	switch kind {
	case Glob:
		if !doublestar.ValidatePattern(raw) {
			return nil, shadowerrors.New(shadowerrors.CodePathInvalid, "invalid glob pattern").
				WithComponent("pattern").WithDetail("pattern", raw)
		}
	case Regex:
		compiled, err := regexp.Compile(raw)
		if err != nil {
			return nil, shadowerrors.New(shadowerrors.CodePathInvalid, "invalid regex pattern").
				WithComponent("pattern").WithCause(err).WithDetail("pattern", raw)
		}
		m.compiled = compiled
	default:
		return nil, shadowerrors.New(shadowerrors.CodePathInvalid, "unknown pattern kind").
			WithComponent("pattern").WithDetail("kind", string(kind))
	}

	cache[key] = m
	return m, nil
}

// Match is a convenience one-shot helper that compiles (using the
// shared cache) and matches in one call.
func Match(kind Kind, raw, path string) (bool, error) {
	m, err := Compile(kind, raw)
	if err != nil {
		return false, err
	}
	return m.Matches(path), nil
}
