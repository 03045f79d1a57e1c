package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/speechbridge/internal/host"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge operations over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.Host.Addr = addr
			}
			printBanner(cmd.OutOrStdout(), a.cfg, "serve")

			b, cleanup, err := a.newBridge()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b.Initialize(ctx)
			srv := host.NewServer(a.cfg.Host, host.NewDispatcher(b, a.metrics, a.logger), a.registry, a.logger)
			err = srv.ListenAndServe(ctx)

			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if cerr := b.Close(closeCtx); cerr != nil {
				a.logger.Warn("closing bridge", "error", cerr)
			}
			a.logger.Info("goodbye")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides host.addr)")
	return cmd
}
