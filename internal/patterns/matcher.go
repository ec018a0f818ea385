package patterns

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Matcher decides which changed paths are handled. Include patterns select
// files (all files when empty), ignore patterns and ignored trees exclude
// them.
type Matcher struct {
	includePatterns []glob.Glob
	ignorePatterns  []glob.Glob
	ignoredTrees    []string
	mu              sync.RWMutex
}

// NewMatcher creates a matcher that accepts every path
func NewMatcher() *Matcher {
	return &Matcher{
		includePatterns: make([]glob.Glob, 0),
		ignorePatterns:  make([]glob.Glob, 0),
	}
}

// SetIncludePatterns sets the include patterns
func (m *Matcher) SetIncludePatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.includePatterns = compiled
	return nil
}

// SetIgnorePatterns sets the ignore patterns
func (m *Matcher) SetIgnorePatterns(patterns []string) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignorePatterns = compiled
	return nil
}

// IgnoreTree excludes dir and everything below it
func (m *Matcher) IgnoreTree(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignoredTrees = append(m.ignoredTrees, abs)
}

func compile(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}

		// Normalize pattern: use forward slashes
		pattern = filepath.ToSlash(pattern)

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

// IsIgnored checks if a path lies in an ignored tree or matches any ignore pattern
func (m *Matcher) IsIgnored(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.inIgnoredTree(path) {
		return true
	}
	return matchAny(m.ignorePatterns, path)
}

// IsIncluded checks if a path matches an include pattern.
// Returns true if no include patterns are defined.
func (m *Matcher) IsIncluded(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.includePatterns) == 0 {
		return true
	}
	return matchAny(m.includePatterns, path)
}

// Matches reports whether a changed file should be handled
func (m *Matcher) Matches(path string) bool {
	return !m.IsIgnored(path) && m.IsIncluded(path)
}

func (m *Matcher) inIgnoredTree(path string) bool {
	if len(m.ignoredTrees) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	for _, tree := range m.ignoredTrees {
		if abs == tree {
			return true
		}
		rel, err := filepath.Rel(tree, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func matchAny(patterns []glob.Glob, path string) bool {
	// Normalize path: use forward slashes
	normalizedPath := filepath.ToSlash(path)
	base := filepath.Base(normalizedPath)
	parts := strings.Split(normalizedPath, "/")

	for _, pattern := range patterns {
		if pattern.Match(normalizedPath) {
			return true
		}
		// Also check just the filename
		if pattern.Match(base) {
			return true
		}
		// Relative suffixes, so "build/*.o" matches /src/build/x.o
		for i := 1; i < len(parts); i++ {
			if pattern.Match(strings.Join(parts[i:], "/")) {
				return true
			}
		}
		// Directory patterns ending with / match any parent segment
		for _, dir := range parts[:len(parts)-1] {
			if dir != "" && pattern.Match(dir+"/") {
				return true
			}
		}
	}
	return false
}
