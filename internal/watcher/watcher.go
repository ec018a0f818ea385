package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/obby/tripwire/internal/failure"
	"github.com/obby/tripwire/internal/patterns"
)

// DefaultQueueSize is the capacity of the event queue between the fsnotify
// forwarder and the consumer
const DefaultQueueSize = 1024

// ErrStopped is returned when adding paths to a stopped watcher
var ErrStopped = errors.New("watcher stopped")

// Options configures a FileWatcher
type Options struct {
	// Debounce coalesces bursts per path; zero disables it
	Debounce time.Duration
	// Matcher filters paths; nil accepts everything
	Matcher *patterns.Matcher
	// Logger receives watcher diagnostics; nil discards them
	Logger *slog.Logger
	// QueueSize overrides DefaultQueueSize
	QueueSize int
}

// FileWatcher wraps fsnotify with recursive directory watching, optional
// debouncing and pattern filtering. Events are delivered in order through a
// buffered queue; a full queue blocks the producer instead of dropping.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	matcher   *patterns.Matcher
	logger    *slog.Logger
	events    chan ChangeEvent
	errors    chan error
	mu        sync.RWMutex
	watching  map[string]bool
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(opts Options) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, failure.Notification("create watcher", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	fw := &FileWatcher{
		watcher:  w,
		matcher:  opts.Matcher,
		logger:   logger,
		events:   make(chan ChangeEvent, queueSize),
		errors:   make(chan error, 16),
		watching: make(map[string]bool),
		done:     make(chan struct{}),
	}
	if opts.Debounce > 0 {
		fw.debouncer = NewDebouncer(opts.Debounce)
	}
	return fw, nil
}

// Start starts forwarding fsnotify events until ctx is done or Stop is called
func (fw *FileWatcher) Start(ctx context.Context) {
	fw.wg.Add(1)
	go fw.processEvents(ctx)
}

// Stop stops the file watcher. Safe to call multiple times.
// Events and Errors are never closed; stop reading them after Stop.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.done)
		if fw.debouncer != nil {
			fw.debouncer.Stop()
		}
		err = fw.watcher.Close()
		fw.wg.Wait()
	})
	return err
}

// AddPath adds path and, when it is a directory, every subdirectory
func (fw *FileWatcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fw.add(absPath)
	}

	if err := fw.add(absPath); err != nil {
		return err
	}
	fw.logger.Info("watching path", "path", absPath)
	fw.warnIfDrvFs(absPath)
	_, err = fw.addDirectoryRecursive(absPath)
	return err
}

// add registers a single path with fsnotify
func (fw *FileWatcher) add(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	select {
	case <-fw.done:
		return ErrStopped
	default:
	}

	if fw.watching[path] {
		return nil
	}
	if err := fw.watcher.Add(path); err != nil {
		return err
	}
	fw.watching[path] = true
	return nil
}

// addDirectoryRecursive adds every subdirectory of dirPath and returns the
// regular files found along the way
func (fw *FileWatcher) addDirectoryRecursive(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !d.IsDir() {
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		}

		if path != dirPath && fw.matcher != nil && fw.matcher.IsIgnored(path) {
			return filepath.SkipDir
		}

		if err := fw.add(path); err != nil {
			if errors.Is(err, ErrStopped) {
				return err
			}
			fw.logger.Warn("error adding directory", "path", path, "error", err)
			return nil // Continue on error
		}
		return nil
	})
	return files, err
}

// WatchCount returns the number of watched directories
func (fw *FileWatcher) WatchCount() int {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return len(fw.watching)
}

// processEvents forwards events from fsnotify
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer fw.wg.Done()
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.reportError(err)
		case <-fw.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reportError queues a notification error without blocking the forwarder
func (fw *FileWatcher) reportError(err error) {
	select {
	case fw.errors <- failure.Notification("watch", err):
	default:
		fw.logger.Warn("error queue full, dropping watcher error", "error", err)
	}
}

// handleEvent handles a single fsnotify event
func (fw *FileWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if fw.matcher != nil && fw.matcher.IsIgnored(event.Name) {
		return
	}

	kind := kindOf(event.Op)
	if kind == KindCreated {
		fw.handlePossibleNewDirectory(ctx, event.Name)
	}

	if fw.matcher != nil && kind != KindOther && !fw.matcher.IsIncluded(event.Name) {
		return
	}

	fw.schedule(ctx, ChangeEvent{
		Kind:      kind,
		Paths:     []string{event.Name},
		Op:        event.Op,
		Timestamp: time.Now(),
	})
}

// handlePossibleNewDirectory watches a directory created under the root and
// reports the files that appeared in it before its watch was in place
func (fw *FileWatcher) handlePossibleNewDirectory(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	files, err := fw.addDirectoryRecursive(path)
	if err != nil {
		return
	}
	fw.logger.Debug("watching new directory", "path", path, "files", len(files))

	for _, file := range files {
		if fw.matcher != nil && !fw.matcher.Matches(file) {
			continue
		}
		fw.schedule(ctx, ChangeEvent{
			Kind:      KindCreated,
			Paths:     []string{file},
			Op:        fsnotify.Create,
			Timestamp: time.Now(),
		})
	}
}

// schedule emits the event directly or through the debouncer
func (fw *FileWatcher) schedule(ctx context.Context, event ChangeEvent) {
	if fw.debouncer == nil || event.Kind == KindOther {
		fw.emit(ctx, event)
		return
	}
	fw.debouncer.Process(event.Paths[0], func() {
		fw.emit(ctx, event)
	})
}

// emit blocks until the consumer takes the event or the watcher stops
func (fw *FileWatcher) emit(ctx context.Context, event ChangeEvent) {
	select {
	case fw.events <- event:
	case <-fw.done:
	case <-ctx.Done():
	}
}

// Events returns the events channel
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Errors returns the notification errors channel
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}
