package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/obby/tripwire/config"
	"github.com/obby/tripwire/internal/failure"
	"github.com/obby/tripwire/internal/hub"
	"github.com/obby/tripwire/internal/server"
	"github.com/obby/tripwire/internal/watchloop"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRootCmd() *cobra.Command {
	cfg := config.LoadConfig()

	cmd := &cobra.Command{
		Use:   "tripwire",
		Short: "Back up changed files and run a command on every change",
		Long: `tripwire watches a directory tree. Every file that is created or modified
is copied into the backup directory under a timestamped name, and the
configured command is run with OLD_FILENAME and NEW_FILENAME replaced by the
changed file and its backup.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cfg.NewLogger(cmd.ErrOrStderr()))
		},
	}

	cfg.BindFlags(cmd.Flags())
	cmd.AddCommand(newTailCmd())
	return cmd
}

// run watches until ctx is done or a fatal error occurs, serving the change
// feed alongside when a feed address is configured
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	var feed *hub.Hub
	if cfg.FeedGRPCAddr != "" || cfg.FeedHTTPAddr != "" {
		feed = hub.New(logger)
		g.Go(func() error {
			feed.Run(gctx)
			return nil
		})
	}
	if cfg.FeedGRPCAddr != "" {
		g.Go(func() error {
			if err := server.StartGRPCServer(gctx, cfg.FeedGRPCAddr, feed, logger); err != nil {
				return failure.Configuration("serve grpc feed", cfg.FeedGRPCAddr, err)
			}
			return nil
		})
	}
	if cfg.FeedHTTPAddr != "" {
		g.Go(func() error {
			if err := server.StartHTTPServer(gctx, cfg.FeedHTTPAddr, feed, logger); err != nil {
				return failure.Configuration("serve sse feed", cfg.FeedHTTPAddr, err)
			}
			return nil
		})
	}

	loop, err := watchloop.New(watchloop.Options{
		Root:      cfg.PathToWatch,
		BackupDir: cfg.BackupPath,
		Command:   cfg.Command,
		Include:   cfg.Include,
		Exclude:   cfg.Exclude,
		Debounce:  cfg.Debounce,
		Diff:      cfg.Diff,
		Logger:    logger,
		Feed:      feed,
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		return loop.Run(gctx)
	})

	return g.Wait()
}
