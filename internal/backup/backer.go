package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/obby/tripwire/internal/failure"
)

// maxCollisionSuffix bounds the ".N" suffixes tried when a name is taken
const maxCollisionSuffix = 1000

// ErrNamesExhausted is returned when every collision suffix is already taken
var ErrNamesExhausted = errors.New("no free backup file name")

// Backer copies changed files into the backup directory
type Backer struct {
	dir    string
	namer  *Namer
	logger *slog.Logger
}

// NewBacker creates a backer for dir. An empty dir disables backups.
func NewBacker(dir string, namer *Namer, logger *slog.Logger) *Backer {
	if namer == nil {
		namer = NewNamer(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backer{
		dir:    dir,
		namer:  namer,
		logger: logger,
	}
}

// Backup copies path into the backup directory and returns the destination.
// It returns "" with a nil error when backups are disabled, when path has no
// file name component, or when path is not a regular file.
func (b *Backer) Backup(path string) (string, error) {
	if b.dir == "" {
		return "", nil
	}

	base, ok := baseName(path)
	if !ok {
		b.logger.Debug("skipping path without file name", "path", path)
		return "", nil
	}

	// stat before opening: opening a named pipe blocks until a writer appears
	info, err := os.Stat(path)
	if err != nil {
		return "", failure.IO("stat source", path, err)
	}
	if info.IsDir() {
		b.logger.Debug("skipping directory", "path", path)
		return "", nil
	}
	if !info.Mode().IsRegular() {
		b.logger.Debug("skipping non-regular file", "path", path, "mode", info.Mode().Type().String())
		return "", nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", failure.IO("open source", path, err)
	}
	defer src.Close()

	dst, dest, err := createUnique(b.dir, b.namer.Name(base), info.Mode().Perm())
	if err != nil {
		return "", failure.IO("create backup", filepath.Join(b.dir, base), err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dest)
		return "", failure.IO("copy", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dest)
		return "", failure.IO("close backup", dest, err)
	}

	b.logger.Debug("backed up file", "source", path, "backup", dest, "bytes", info.Size())
	return dest, nil
}

// baseName returns the final path segment, or false when there is none
func baseName(path string) (string, bool) {
	if path == "" || os.IsPathSeparator(path[len(path)-1]) {
		return "", false
	}
	base := filepath.Base(path)
	switch base {
	case ".", "..", string(filepath.Separator):
		return "", false
	}
	return base, true
}

// createUnique creates name inside dir without ever replacing an existing
// file. Taken names get a ".N" suffix.
func createUnique(dir, name string, perm fs.FileMode) (*os.File, string, error) {
	candidate := filepath.Join(dir, name)
	for i := 0; i <= maxCollisionSuffix; i++ {
		if i > 0 {
			candidate = filepath.Join(dir, name+"."+strconv.Itoa(i))
		}
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNamesExhausted, name)
}
