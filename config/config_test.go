package config

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/obby/tripwire/internal/failure"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg := LoadConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	cfg := LoadConfig()
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, slog.LevelError, cfg.Level())

	t.Setenv("LOG_LEVEL", "info")
	assert.Equal(t, slog.LevelInfo, LoadConfig().Level())
}

func TestBindFlags(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	cfg := parse(t,
		"--path-to-watch", "/tmp/watched",
		"-b", "/tmp/backup",
		"--command", "echo OLD_FILENAME NEW_FILENAME",
		"-v",
		"--include", "*.md,*.txt",
		"--exclude", "*.swp",
		"--debounce", "250ms",
		"--diff",
		"--feed-grpc", "127.0.0.1:50061",
	)

	assert.Equal(t, "/tmp/watched", cfg.PathToWatch)
	assert.Equal(t, "/tmp/backup", cfg.BackupPath)
	assert.Equal(t, "echo OLD_FILENAME NEW_FILENAME", cfg.Command)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, []string{"*.md", "*.txt"}, cfg.Include)
	assert.Equal(t, []string{"*.swp"}, cfg.Exclude)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.True(t, cfg.Diff)
	assert.Equal(t, "127.0.0.1:50061", cfg.FeedGRPCAddr)
	assert.Empty(t, cfg.FeedHTTPAddr)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing path", nil},
		{"bad log level", []string{"-p", "/tmp/w", "--log-level", "loud"}},
		{"negative debounce", []string{"-p", "/tmp/w", "--debounce=-1s"}},
		{"diff without backup", []string{"-p", "/tmp/w", "--diff"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parse(t, tt.args...).Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, failure.ErrConfiguration))
		})
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "path", "/tmp/a")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "path=/tmp/a")
}
