package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/cmdbot/internal/gateway/console"
	"github.com/hyperifyio/cmdbot/internal/gateway/socketio"
	"github.com/hyperifyio/cmdbot/internal/telemetry"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var url, namespace string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the chat relay over socket.io and answer commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("url") {
				cfg.SocketIOURL = url
			}
			if cmd.Flags().Changed("namespace") {
				cfg.SocketIONamespace = namespace
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Setup(ctx, "cmdbot", cfg.OTelEndpoint)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.Background()) }()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			gw, err := socketio.Dial(ctx, socketio.Options{
				URL:       cfg.SocketIOURL,
				Namespace: cfg.SocketIONamespace,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			defer func() { _ = gw.Close() }()

			d, err := a.dispatcher(gw)
			if err != nil {
				return err
			}
			a.logger.Info("serving", "url", cfg.SocketIOURL, "namespace", cfg.SocketIONamespace, "store", cfg.Store)
			if err := d.Serve(ctx, gw.Messages()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "socket.io relay URL (overrides CMDBOT_SOCKETIO_URL)")
	cmd.Flags().StringVar(&namespace, "namespace", "", "socket.io namespace (overrides CMDBOT_SOCKETIO_NAMESPACE)")
	return cmd
}

func newConsoleCommand(opts *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Read invocations from stdin and print replies to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			gw := console.New(cmd.InOrStdin(), cmd.OutOrStdout(), console.Identity{UserID: user})
			defer func() { _ = gw.Close() }()

			d, err := a.dispatcher(gw)
			if err != nil {
				return err
			}
			return d.Serve(cmd.Context(), gw.Messages())
		},
	}
	cmd.Flags().StringVar(&user, "user", "console", "user id the console speaks as")
	return cmd
}
