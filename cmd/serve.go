package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"document-chat/internal/web"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat page and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			state, err := svc.LoadIndex(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = opts.cfg.Server.Addr
			}
			return web.NewServer(svc, state, opts.cfg.Server.MaxUploadMB).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
