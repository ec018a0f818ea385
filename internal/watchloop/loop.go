// Package watchloop ties the notification source to the backup and command
// side effects. Events are handled one at a time in delivery order.
package watchloop

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/obby/tripwire/internal/backup"
	"github.com/obby/tripwire/internal/diff"
	"github.com/obby/tripwire/internal/failure"
	"github.com/obby/tripwire/internal/hub"
	"github.com/obby/tripwire/internal/patterns"
	"github.com/obby/tripwire/internal/trigger"
	"github.com/obby/tripwire/internal/watcher"
)

// State is the lifecycle state of a Loop
type State int32

const (
	StateInitializing State = iota
	StateRunning
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options describes one watch run
type Options struct {
	// Root is the directory watched recursively
	Root string
	// BackupDir receives timestamped copies; empty disables backups
	BackupDir string
	// Command is the trigger template; empty disables it
	Command string

	Include  []string
	Exclude  []string
	Debounce time.Duration
	// Diff logs a line change summary against the previous backup of a file
	Diff bool

	Logger *slog.Logger
	// Feed receives a message per processed path when set
	Feed *hub.Hub
	// Clock overrides time.Now for backup names
	Clock func() time.Time
}

// Record describes one processed path
type Record struct {
	ID         string
	Kind       watcher.Kind
	Source     string
	Backup     string
	Time       time.Time
	Summarized bool
	Added      int
	Removed    int
	CommandErr error
}

// Loop consumes change events and applies backups and commands
type Loop struct {
	opts    Options
	logger  *slog.Logger
	state   atomic.Int32
	matcher *patterns.Matcher
	backer  *backup.Backer
	trigger *trigger.Trigger
	differ  *diff.Generator

	// most recent backup per source path, for change summaries
	lastBackup map[string]string
}

// New validates the options that need no filesystem access and builds a loop
func New(opts Options) (*Loop, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	matcher := patterns.NewMatcher()
	if err := matcher.SetIncludePatterns(opts.Include); err != nil {
		return nil, failure.Configuration("compile include patterns", strings.Join(opts.Include, ","), err)
	}
	if err := matcher.SetIgnorePatterns(opts.Exclude); err != nil {
		return nil, failure.Configuration("compile exclude patterns", strings.Join(opts.Exclude, ","), err)
	}

	trig, err := trigger.New(opts.Command, logger)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		opts:       opts,
		logger:     logger,
		matcher:    matcher,
		backer:     backup.NewBacker(opts.BackupDir, backup.NewNamer(opts.Clock), logger),
		trigger:    trig,
		lastBackup: make(map[string]string),
	}
	if opts.Diff && opts.BackupDir != "" {
		l.differ = diff.NewDiffGenerator(0)
	}
	return l, nil
}

// State returns the current lifecycle state
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Run validates the root and backup directory, subscribes to changes under
// the root and handles events until ctx is done or a backup fails. It
// returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateInitializing)
	defer l.setState(StateStopped)

	root, err := validateRoot(l.opts.Root)
	if err != nil {
		return err
	}

	if err := backup.EnsureDir(l.opts.BackupDir); err != nil {
		return err
	}
	l.ignoreNestedBackupDir(root)

	fw, err := watcher.NewFileWatcher(watcher.Options{
		Debounce: l.opts.Debounce,
		Matcher:  l.matcher,
		Logger:   l.logger,
	})
	if err != nil {
		return err
	}
	defer fw.Stop()

	if err := fw.AddPath(root); err != nil {
		return failure.Configuration("watch root", root, err)
	}
	fw.Start(ctx)

	l.setState(StateRunning)
	l.logger.Info("watching", "root", root, "backup_dir", l.opts.BackupDir, "command", l.opts.Command)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("stopping watch", "root", root)
			return nil
		case event := <-fw.Events():
			if err := l.handleEvent(ctx, event); err != nil {
				return err
			}
		case err := <-fw.Errors():
			l.logger.Error("watcher error", "error", err)
			l.publishError("", err)
		}
	}
}

// validateRoot resolves root and checks that it is an existing directory
func validateRoot(root string) (string, error) {
	if root == "" {
		return "", failure.Configuration("path to watch is required", "", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", failure.Configuration("resolve path to watch", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", failure.Configuration("stat path to watch", abs, err)
	}
	if !info.IsDir() {
		return "", failure.Configuration("path to watch is not a directory", abs, nil)
	}
	return abs, nil
}

// ignoreNestedBackupDir keeps backups written under the root from being
// backed up again
func (l *Loop) ignoreNestedBackupDir(root string) {
	if l.opts.BackupDir == "" {
		return
	}
	dir, err := filepath.Abs(l.opts.BackupDir)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	l.matcher.IgnoreTree(dir)
	l.logger.Info("backup directory is inside the watched tree, ignoring it", "backup_dir", dir)
}

// handleEvent processes one change event. Only backup failures are returned.
func (l *Loop) handleEvent(ctx context.Context, event watcher.ChangeEvent) error {
	switch event.Kind {
	case watcher.KindCreated, watcher.KindModified:
		for _, path := range event.Paths {
			l.logger.Info("received change", "kind", event.Kind.String(), "path", path)
			if !l.matcher.Matches(path) {
				l.logger.Debug("path filtered out", "path", path)
				continue
			}
			if _, err := l.processPath(ctx, event.Kind, path); err != nil {
				return err
			}
		}
	default:
		l.logger.Info("nothing to do for event", "op", event.Op.String(), "paths", event.Paths)
		if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
			for _, path := range event.Paths {
				l.forget(path)
			}
		}
	}
	return nil
}

// forget drops the summary baseline of path and of everything below it
func (l *Loop) forget(path string) {
	prefix := path + string(filepath.Separator)
	for source := range l.lastBackup {
		if source == path || strings.HasPrefix(source, prefix) {
			delete(l.lastBackup, source)
		}
	}
}

// processPath backs up path, summarizes the change, and runs the command
func (l *Loop) processPath(ctx context.Context, kind watcher.Kind, path string) (Record, error) {
	rec := Record{
		ID:     uuid.NewString(),
		Kind:   kind,
		Source: path,
		Time:   time.Now(),
	}

	dest, err := l.backer.Backup(path)
	if err != nil {
		l.publishError(path, err)
		return rec, err
	}
	rec.Backup = dest

	if dest != "" {
		l.summarize(&rec)
		l.lastBackup[path] = dest
	}

	// the command runs to completion even when ctx is cancelled mid-event
	if err := l.trigger.Run(context.WithoutCancel(ctx), path, dest); err != nil {
		rec.CommandErr = err
		l.logger.Error("command failed", "path", path, "error", err)
		l.publishError(path, err)
	}

	l.publishRecord(rec)
	return rec, nil
}

// summarize compares the new backup with the previous backup of the same file
func (l *Loop) summarize(rec *Record) {
	if l.differ == nil {
		return
	}
	prev, ok := l.lastBackup[rec.Source]
	if !ok {
		return
	}
	summary, ok, err := l.differ.SummarizeFiles(prev, rec.Backup)
	if err != nil {
		l.logger.Warn("could not summarize change", "path", rec.Source, "error", err)
		return
	}
	if !ok {
		l.logger.Debug("skipping change summary for binary or large file", "path", rec.Source)
		return
	}
	rec.Summarized = true
	rec.Added = summary.Added
	rec.Removed = summary.Removed
	if !summary.Changed() {
		l.logger.Debug("no line changes since previous backup", "path", rec.Source, "previous", prev)
		return
	}
	l.logger.Info("file changed", "path", rec.Source, "added", summary.Added, "removed", summary.Removed, "previous", prev)
	l.logger.Debug("change patch", "path", rec.Source, "patch", summary.Patch)
}

func (l *Loop) publishRecord(rec Record) {
	if l.opts.Feed == nil {
		return
	}
	data := map[string]string{
		"source": rec.Source,
		"backup": rec.Backup,
	}
	if rec.Summarized {
		data["added"] = strconv.Itoa(rec.Added)
		data["removed"] = strconv.Itoa(rec.Removed)
	}
	if rec.CommandErr != nil {
		data["command_error"] = rec.CommandErr.Error()
	}
	l.opts.Feed.Publish(hub.Message{
		ID:    rec.ID,
		Event: rec.Kind.String(),
		Topic: hub.TopicChanges,
		Time:  rec.Time,
		Data:  data,
	})
}

func (l *Loop) publishError(path string, err error) {
	if l.opts.Feed == nil {
		return
	}
	l.opts.Feed.Publish(hub.Message{
		Event: failure.KindOf(err).String(),
		Topic: hub.TopicErrors,
		Data: map[string]string{
			"path":  path,
			"error": err.Error(),
		},
	})
}
