package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trade-journal/internal/imagecache"
	"trade-journal/internal/server"
	"trade-journal/internal/stream"
)

func addServeCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the journal HTTP server",
		Long: `Serve the journal over HTTP.

Exposes the REST API under /api, a live websocket feed at /api/live,
Prometheus metrics at /metrics and a health check at /health. A background
janitor purges expired cache entries and sessions on the configured
schedule.`,
		Example: `  journal serve
  journal serve --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			docs, err := app.Docs()
			if err != nil {
				return err
			}
			blobs, err := app.Blobs(ctx)
			if err != nil {
				return err
			}
			provider, err := app.Auth()
			if err != nil {
				return err
			}

			cache, err := imagecache.New(cfg.Cache.Path, blobs, cfg.Cache.MaxAge, app.Logger)
			if err != nil {
				return fmt.Errorf("failed to open image cache: %w", err)
			}
			defer cache.Close()
			cache.SetMetrics(app.Metrics)

			janitor, err := imagecache.NewJanitor(cache, cfg.Cache.JanitorSchedule, app.Logger)
			if err != nil {
				return err
			}
			if err := janitor.AddPurge("sessions", provider.PurgeExpired); err != nil {
				return err
			}
			janitor.Start()
			defer janitor.Stop()

			srv := server.New(server.Config{
				Log:      app.Logger,
				Server:   cfg.Server,
				Sync:     cfg.Sync,
				Docs:     docs,
				Blobs:    blobs,
				Auth:     provider,
				Importer: app.Importer(),
				Cache:    cache,
				Hub:      stream.NewHub(app.Logger),
				Engine:   app.Engine,
				Metrics:  app.Metrics,
				Access:   app.Access,
				Audit:    app.Audit,
			})

			if !output.IsJSON() {
				output.Success("✓ Serving on %s", cfg.Server.Addr)
				if cfg.Security.ReadOnly {
					output.Warning("Read-only mode: writes are rejected")
				}
				output.Dim("Press Ctrl+C to stop")
			}

			// Run returns once the signal context ends and shutdown completes
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	rootCmd.AddCommand(cmd)
}
