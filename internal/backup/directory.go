package backup

import (
	"os"

	"github.com/obby/tripwire/internal/failure"
)

// EnsureDir creates the backup directory and its parents if needed and checks
// that the result is a directory. An empty path means no backup directory and
// is a no-op.
func EnsureDir(path string) error {
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return failure.Configuration("create backup directory", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return failure.Configuration("stat backup directory", path, err)
	}
	if !info.IsDir() {
		return failure.Configuration("backup path is not a directory", path, nil)
	}

	return nil
}
