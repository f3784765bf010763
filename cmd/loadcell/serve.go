package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loadcell/internal/app"
	"loadcell/internal/infrastructure"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		port    int
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve processed files read-only over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				c.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("data-dir") {
				c.cfg.Server.DataDir = dataDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var providers *infrastructure.OTelProviders
			if c.cfg.Telemetry.Enabled {
				p, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(c.cfg.Telemetry), c.logger)
				if err != nil {
					return c.fail(cmd, "Failed to initialize telemetry", err)
				}
				providers = p
				defer func() {
					if err := providers.Shutdown(context.Background()); err != nil {
						c.logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
					}
				}()
			}

			application, err := app.New(c.cfg, c.logger, providers)
			if err != nil {
				return c.fail(cmd, "Failed to create application", err)
			}
			if err := application.Run(ctx); err != nil {
				return c.fail(cmd, "Server stopped with error", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding processed files (overrides server.data_dir)")
	return cmd
}
