package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spboyer/stimseq/internal/trigger"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for trigger labels to bench-test a trigger link",
		Long: `Accept trigger link connections and print every received label with the
peer address and receive time. Point trigger.tcp_address at this listener to
check a setup without recording hardware. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveTriggers(ctx, listenAddr, cmd.OutOrStdout(), nil)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":5005", "TCP address to listen on")

	return cmd
}

// serveTriggers runs a trigger sink until ctx is done. ready, when set,
// receives the bound address once the listener is open.
func serveTriggers(ctx context.Context, addr string, out io.Writer, ready func(string)) error {
	var mu sync.Mutex
	sink, err := trigger.Listen(addr, func(r trigger.Received) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "%s  %-21s  %s\n", r.At.Format("15:04:05.000"), r.Peer, r.Label)
	})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	defer sink.Close() //nolint:errcheck

	bound := sink.Addr().String()
	slog.Info("trigger sink listening", "addr", bound)
	if ready != nil {
		ready(bound)
	}
	return sink.Serve(ctx)
}
