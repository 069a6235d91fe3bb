package pattern

import "testing"

func TestGlobMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.md", "/readme.md", true},
		{"*.md", "/docs/readme.md", false},
		{"**/*.md", "/docs/readme.md", true},
		{"docs/**", "/docs/a/b/c.txt", true},
		{"*.txt", "/readme.md", false},
	}

	for _, tt := range tests {
		got, err := Match(Glob, tt.pattern, tt.path)
		if err != nil {
			t.Fatalf("Match(%q, %q) error: %v", tt.pattern, tt.path, err)
		}
		if got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestRegexMatches(t *testing.T) {
	t.Parallel()

	m, err := Compile(Regex, `^/docs/.*\.md$`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !m.Matches("/docs/readme.md") {
		t.Error("expected regex match")
	}
	if m.Matches("/docs/readme.txt") {
		t.Error("expected regex mismatch")
	}
}

func TestCompileCaches(t *testing.T) {
	t.Parallel()

	a, err := Compile(Glob, "*.unique-test-pattern")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile(Glob, "*.unique-test-pattern")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected Compile to return the cached matcher on repeat calls")
	}
}

func TestInvalidRegexRejected(t *testing.T) {
	t.Parallel()

	if _, err := Compile(Regex, "(unclosed"); err == nil {
		t.Error("expected error for invalid regex")
	}
}
