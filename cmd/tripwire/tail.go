package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/obby/tripwire/internal/failure"
	"github.com/obby/tripwire/internal/hub"
	"github.com/obby/tripwire/internal/server"
	"github.com/spf13/cobra"
)

func newTailCmd() *cobra.Command {
	var (
		addr   string
		topics []string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the change feed of a running tripwire",
		Long: `Connect to the gRPC feed of a tripwire started with --feed-grpc and print
every processed change and reported error until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := server.Dial(addr)
			if err != nil {
				return failure.Configuration("dial feed", addr, err)
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			err = server.Tail(ctx, conn, topics, func(msg hub.Message) error {
				_, err := io.WriteString(out, formatMessage(msg)+"\n")
				return err
			})
			if err != nil && ctx.Err() == nil {
				return failure.Notification("tail feed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:50061", "address of the gRPC feed")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "topics to follow (changes, errors); all when empty")
	return cmd
}

// formatMessage renders one feed message as a single line
func formatMessage(msg hub.Message) string {
	var b strings.Builder
	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, "%s %-8s", ts.Local().Format(time.DateTime), msg.Event)

	switch msg.Topic {
	case hub.TopicChanges:
		b.WriteString(" " + msg.Data["source"])
		if backup := msg.Data["backup"]; backup != "" {
			b.WriteString(" -> " + backup)
		}
		if added, ok := msg.Data["added"]; ok {
			fmt.Fprintf(&b, " (+%s -%s)", added, msg.Data["removed"])
		}
		if cmdErr := msg.Data["command_error"]; cmdErr != "" {
			b.WriteString(" command: " + cmdErr)
		}
	default:
		keys := make([]string, 0, len(msg.Data))
		for k := range msg.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if msg.Data[k] != "" {
				fmt.Fprintf(&b, " %s=%q", k, msg.Data[k])
			}
		}
	}
	return b.String()
}
