package backup

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/obby/tripwire/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backupNamePattern = regexp.MustCompile(`\.\d{4}-\d{2}-\d{2}_\d{2}_\d{2}_\d{2}$`)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNameAppendsTimestamp(t *testing.T) {
	tests := []struct {
		name string
		base string
	}{
		{"plain file", "test_file.txt"},
		{"no extension", "Makefile"},
		{"dotfile", ".bashrc"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewNamer(nil).Name(tt.base)
			pattern := regexp.MustCompile("^" + regexp.QuoteMeta(tt.base) + `\.\d{4}-\d{2}-\d{2}_\d{2}_\d{2}_\d{2}$`)
			assert.True(t, pattern.MatchString(got), "unexpected name %q", got)
			assert.Len(t, backupNamePattern.FindAllString(got, -1), 1)
		})
	}
}

func TestNameZeroPadsFields(t *testing.T) {
	now := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.Local)
	assert.Equal(t, "a.txt.2024-03-05_07_08_09", Name("a.txt", now))
}

func TestEnsureDirEmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	before, err := os.ReadDir(dir)
	require.NoError(t, err)

	require.NoError(t, EnsureDir(""))

	after, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestEnsureDirCreatesAncestorsAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "backup")

	require.NoError(t, EnsureDir(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, EnsureDir(path))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEnsureDirRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := EnsureDir(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrConfiguration))
}

func TestBackupWithoutDirIsNoop(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	dest, err := NewBacker("", nil, nil).Backup(src)
	require.NoError(t, err)
	assert.Empty(t, dest)
}

func TestBackupCopiesContent(t *testing.T) {
	watched := t.TempDir()
	backupDir := t.TempDir()
	src := filepath.Join(watched, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	now := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.Local)
	backer := NewBacker(backupDir, NewNamer(fixedClock(now)), nil)

	dest, err := backer.Backup(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "a.txt.2024-01-02_03_04_05"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	original, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(original))
}

func TestBackupNeverOverwritesWithinSameSecond(t *testing.T) {
	watched := t.TempDir()
	backupDir := t.TempDir()
	src := filepath.Join(watched, "a.txt")
	now := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.Local)
	backer := NewBacker(backupDir, NewNamer(fixedClock(now)), nil)

	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	first, err := backer.Backup(src)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("world"), 0o644))
	second, err := backer.Backup(src)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, first+".1", second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestBackupSkipsPathsWithoutFileName(t *testing.T) {
	backer := NewBacker(t.TempDir(), nil, nil)
	sep := string(filepath.Separator)

	for _, path := range []string{"", sep, "foo" + sep, "."} {
		dest, err := backer.Backup(path)
		require.NoError(t, err, "path %q", path)
		assert.Empty(t, dest, "path %q", path)
	}
}

func TestBackupSkipsDirectories(t *testing.T) {
	backupDir := t.TempDir()
	sub := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	dest, err := NewBacker(backupDir, nil, nil).Backup(sub)
	require.NoError(t, err)
	assert.Empty(t, dest)

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBackupMissingSourceIsIOError(t *testing.T) {
	backer := NewBacker(t.TempDir(), nil, nil)

	_, err := backer.Backup(filepath.Join(t.TempDir(), "gone.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrIO))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBackupUnwritableDestinationIsIOError(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := NewBacker(missing, nil, nil).Backup(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrIO))
}
