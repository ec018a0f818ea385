package patterns

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyMatcherAcceptsEverything(t *testing.T) {
	m := NewMatcher()

	assert.True(t, m.Matches("/tmp/watched/a.txt"))
	assert.True(t, m.Matches("/tmp/watched/nested/b.bin"))
	assert.False(t, m.IsIgnored("/tmp/watched/a.txt"))
}

func TestIgnorePatterns(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetIgnorePatterns([]string{"*.swp", "# comment", "", "node_modules/", "build/*.o"}))

	tests := []struct {
		name    string
		path    string
		ignored bool
	}{
		{"swap file", "/w/docs/.notes.txt.swp", true},
		{"regular file", "/w/docs/notes.txt", false},
		{"inside ignored dir", "/w/node_modules/pkg/index.js", true},
		{"relative suffix", "/w/src/build/main.o", true},
		{"object outside build", "/w/src/main.o", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ignored, m.IsIgnored(tt.path))
			assert.Equal(t, !tt.ignored, m.Matches(tt.path))
		})
	}
}

func TestIncludePatterns(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetIncludePatterns([]string{"*.md", "*.txt"}))
	require.NoError(t, m.SetIgnorePatterns([]string{"draft-*"}))

	assert.True(t, m.Matches("/w/readme.md"))
	assert.True(t, m.Matches("/w/nested/a.txt"))
	assert.False(t, m.Matches("/w/image.png"))
	assert.False(t, m.Matches("/w/draft-1.md"))
}

func TestInvalidPattern(t *testing.T) {
	m := NewMatcher()
	assert.Error(t, m.SetIgnorePatterns([]string{"[unclosed"}))
}

func TestIgnoreTree(t *testing.T) {
	root := t.TempDir()
	backupDir := filepath.Join(root, "backup")

	m := NewMatcher()
	m.IgnoreTree(backupDir)

	assert.True(t, m.IsIgnored(backupDir))
	assert.True(t, m.IsIgnored(filepath.Join(backupDir, "a.txt.2024-01-02_03_04_05")))
	assert.False(t, m.IsIgnored(filepath.Join(root, "a.txt")))
	assert.False(t, m.IsIgnored(filepath.Join(root, "backup-notes.txt")))
}
