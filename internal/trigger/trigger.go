package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/obby/tripwire/internal/failure"
)

// Environment variables carrying the changed file and its backup. Their
// names must not contain a placeholder token.
const (
	EnvOldFilename = "TRIPWIRE_OLD_FILENAME"
	EnvNewFilename = "TRIPWIRE_NEW_FILENAME"
)

// DefaultWaitDelay bounds how long output pipes held open by a command's
// background children may keep Run waiting after the command exits
const DefaultWaitDelay = 5 * time.Second

// maxErrorOutput is the size of the output tail attached to a failure
const maxErrorOutput = 512

// Trigger runs a command template after each processed file change
type Trigger struct {
	args      []string
	logger    *slog.Logger
	waitDelay time.Duration
}

// New parses template into an argument vector. An empty template creates a
// disabled trigger.
func New(template string, logger *slog.Logger) (*Trigger, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &Trigger{logger: logger, waitDelay: DefaultWaitDelay}
	if strings.TrimSpace(template) == "" {
		return t, nil
	}

	args, err := SplitTemplate(template)
	if err != nil {
		return nil, failure.Configuration("parse command template", template, err)
	}
	t.args = args
	return t, nil
}

// Enabled reports whether a command template was supplied
func (t *Trigger) Enabled() bool {
	return len(t.args) > 0
}

// Expand returns the argument vector with placeholders substituted
func (t *Trigger) Expand(oldPath, newPath string) []string {
	if !t.Enabled() {
		return nil
	}
	return Substitute(t.args, oldPath, newPath)
}

// Run executes the command for a change to oldPath whose backup is newPath.
// newPath is empty when no backup was made.
func (t *Trigger) Run(ctx context.Context, oldPath, newPath string) error {
	if !t.Enabled() {
		t.logger.Debug("no command supplied, no attempt to run a command will be made", "path", oldPath)
		return nil
	}

	argv := t.Expand(oldPath, newPath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(),
		EnvOldFilename+"="+oldPath,
		EnvNewFilename+"="+newPath,
	)
	cmd.WaitDelay = t.waitDelay

	t.logger.Debug("running command", "argv", argv)
	output, err := cmd.CombinedOutput()
	if len(output) > 0 {
		t.logger.Debug("command output", "command", argv[0], "output", strings.TrimSpace(string(output)))
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		t.logger.Warn("command exited but left its output open, stopped waiting", "command", argv[0])
		return nil
	}
	if err != nil {
		if tail := outputTail(output); tail != "" {
			err = fmt.Errorf("%w: %s", err, tail)
		}
		return failure.Command("run command", argv[0], err)
	}
	return nil
}

// outputTail returns the trimmed last maxErrorOutput bytes of output
func outputTail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > maxErrorOutput {
		text = "..." + text[len(text)-maxErrorOutput:]
	}
	return text
}
