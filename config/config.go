package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/obby/tripwire/internal/failure"
	"github.com/spf13/pflag"
)

// Config holds the configuration for a watch run
type Config struct {
	PathToWatch string
	BackupPath  string
	Command     string
	Verbose     bool
	LogLevel    string

	Include  []string
	Exclude  []string
	Debounce time.Duration
	Diff     bool

	FeedGRPCAddr string
	FeedHTTPAddr string
}

// LoadConfig loads defaults, taking the log level from LOG_LEVEL
func LoadConfig() *Config {
	logLevel := "error"
	if ll := os.Getenv("LOG_LEVEL"); ll != "" {
		logLevel = ll
	}

	return &Config{
		LogLevel: logLevel,
	}
}

// BindFlags registers the watch flags on fs, using the current values as defaults
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.PathToWatch, "path-to-watch", "p", c.PathToWatch, "directory to watch recursively")
	fs.StringVarP(&c.BackupPath, "backup-path", "b", c.BackupPath, "copy created and modified files into this directory (created if missing, never deletes)")
	fs.StringVarP(&c.Command, "command", "c", c.Command, "command to run after each change; OLD_FILENAME and NEW_FILENAME are substituted")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "log what happens while running")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level when not verbose (debug, info, warn, error)")
	fs.StringSliceVar(&c.Include, "include", c.Include, "only handle files matching these glob patterns")
	fs.StringSliceVar(&c.Exclude, "exclude", c.Exclude, "ignore paths matching these glob patterns")
	fs.DurationVar(&c.Debounce, "debounce", c.Debounce, "coalesce bursts of events per file within this window (0 disables)")
	fs.BoolVar(&c.Diff, "diff", c.Diff, "log a line change summary against the previous backup of the same file")
	fs.StringVar(&c.FeedGRPCAddr, "feed-grpc", c.FeedGRPCAddr, "serve a live gRPC feed of processed changes on this address")
	fs.StringVar(&c.FeedHTTPAddr, "feed-http", c.FeedHTTPAddr, "serve a live Server-Sent Events feed of processed changes on this address")
}

// Validate checks the configuration before anything is watched
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PathToWatch) == "" {
		return failure.Configuration("path to watch is required", "", nil)
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return failure.Configuration("unknown log level", c.LogLevel, nil)
	}
	if c.Debounce < 0 {
		return failure.Configuration("debounce must not be negative", c.Debounce.String(), nil)
	}
	if c.Diff && c.BackupPath == "" {
		return failure.Configuration("--diff needs --backup-path", "", nil)
	}
	return nil
}

// Level returns the effective log level
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	level, ok := parseLevel(c.LogLevel)
	if !ok {
		return slog.LevelError
	}
	return level
}

// NewLogger creates the process logger writing to w
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
