package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/galeview/pkg/server"
	"github.com/dshills/galeview/pkg/storage"
)

// NewServeCommand creates the serve command running the HTTP API
func NewServeCommand() *cobra.Command {
	var (
		addr        string
		noSnapshots bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve agents, tasks and flow layouts over HTTP",
		Long: `Run the JSON API used by browser renderers.

Routes:
  GET  /health
  GET  /api/v1/agents
  GET  /api/v1/agents/{taskId}
  GET  /api/v1/tasks                          ?correlationId= &filter=
  POST /api/v1/tasks
  GET  /api/v1/tasks/{taskInstanceId}
  GET  /api/v1/flows/{correlationId}
  GET  /api/v1/flows/{correlationId}/layout   ?refresh=true
  GET  /api/v1/flows/{correlationId}/levels
  GET  /api/v1/flows/{correlationId}/find     ?agent= | ?group= | ?branch=
  GET  /api/v1/snapshots                      ?correlationId= &limit=
  GET  /api/v1/snapshots/{snapshotId}
  GET  /api/v1/snapshots/{snapshotId}/layout

Layouts are cached per correlation id for server.cache_ttl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := GlobalConfig.App
			if app == nil {
				app = DefaultAppConfig()
			}

			cfg := server.DefaultConfig()
			cfg.Addr = app.Server.Addr
			cfg.CacheTTL = time.Duration(app.Server.CacheTTL)
			cfg.CORSOrigin = app.Server.CORSOrigin
			cfg.Sizes = app.Layout
			if addr != "" {
				cfg.Addr = addr
			}

			client, err := newBrokerClient()
			if err != nil {
				return err
			}

			logger := GlobalConfig.logger()
			opts := []server.Option{server.WithLogger(logger)}
			if !noSnapshots {
				var repo *storage.SQLiteSnapshotRepository
				if repo, err = openSnapshots(); err != nil {
					return err
				}
				defer func() {
					_ = repo.Close()
				}()
				opts = append(opts, server.WithSnapshots(repo))
			}

			srv, err := server.New(cfg, client, opts...)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("serving broker", "broker", client.BaseURL(), "addr", cfg.Addr)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8090)")
	cmd.Flags().BoolVar(&noSnapshots, "no-snapshots", false, "Do not serve stored snapshots")
	return cmd
}

