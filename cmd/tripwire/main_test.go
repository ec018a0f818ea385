package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/obby/tripwire/config"
	"github.com/obby/tripwire/internal/failure"
	"github.com/obby/tripwire/internal/hub"
	"github.com/obby/tripwire/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no path", []string{}},
		{"missing path", []string{"-p", filepath.Join(t.TempDir(), "missing")}},
		{"unterminated quote", []string{"-p", t.TempDir(), "-c", `echo "OLD_FILENAME`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()
			require.Error(t, err)
			assert.True(t, errors.Is(err, failure.ErrConfiguration))
		})
	}
}

func TestRunBacksUpUntilCancelled(t *testing.T) {
	root := t.TempDir()
	backups := t.TempDir()
	cfg := &config.Config{PathToWatch: root, BackupPath: backups, LogLevel: "error"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, cfg.NewLogger(&bytes.Buffer{}))
	}()

	file := filepath.Join(root, "a.txt")
	require.Eventually(t, func() bool {
		// rewrite until the watch is established and a backup appears
		_ = os.WriteFile(file, []byte("hello"), 0o644)
		entries, err := os.ReadDir(backups)
		return err == nil && len(entries) > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestTailPrintsFeed(t *testing.T) {
	h := hub.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.ServeGRPC(ctx, lis, h, nil)
	}()

	var out syncBuffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"tail", "--addr", lis.Addr().String(), "--topics", hub.TopicChanges})
	cmd.SetOut(&out)

	tailCtx, cancelTail := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(tailCtx)
	}()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	h.Publish(hub.Message{
		Event: "modified",
		Topic: hub.TopicChanges,
		Data:  map[string]string{"source": "/w/a.txt", "backup": "/b/a.txt.2024-01-02_03_04_05"},
	})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "/w/a.txt -> /b/a.txt.2024-01-02_03_04_05")
	}, 5*time.Second, 10*time.Millisecond)

	cancelTail()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tail did not return after cancel")
	}
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.Local)

	line := formatMessage(hub.Message{
		Event: "created",
		Topic: hub.TopicChanges,
		Time:  ts,
		Data: map[string]string{
			"source":        "/w/a.txt",
			"backup":        "/b/a.txt.2024-01-02_03_04_05",
			"added":         "3",
			"removed":       "1",
			"command_error": "exit status 1",
		},
	})
	assert.Equal(t, "2024-01-02 03:04:05 created  /w/a.txt -> /b/a.txt.2024-01-02_03_04_05 (+3 -1) command: exit status 1", line)

	line = formatMessage(hub.Message{
		Event: "io",
		Topic: hub.TopicErrors,
		Time:  ts,
		Data:  map[string]string{"path": "/w/b.txt", "error": "disk full"},
	})
	assert.Equal(t, `2024-01-02 03:04:05 io       error="disk full" path="/w/b.txt"`, line)
}
