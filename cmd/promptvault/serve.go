package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/promptvault/internal/server"
)

var (
	servePort  int
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the prompt index over HTTP",
	Long: `Start the HTTP API on 127.0.0.1.

Endpoints:
  GET  /api/health
  GET  /api/prompts              grouped by category (?category=, ?q= to search)
  GET  /api/prompts/{ref}
  POST /api/prompts/{ref}/resolve
  GET  /api/categories
  GET  /api/fragments
  POST /api/sync                 (?directory= for one prompt)
  POST /api/cleanup
  GET  /api/events               server-sent sync events
  GET  /metrics                  Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runE(func(ctx context.Context, a *app, _ []string) error {
		if serveWatch {
			stop, err := a.startWatching(ctx)
			if err != nil {
				return err
			}
			defer stop()
		} else if _, err := a.rec.SyncAll(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = a.cfg.ServerPort
		}

		srv := server.New(server.Deps{
			Catalog:    a.catalog,
			Reconciler: a.rec,
			Resolver:   a.resolver,
			Library:    a.lib,
			History:    a.history,
			Events:     a.events,
			Version:    Version,
		})
		log.Info().Int("port", port).Str("version", Version).Msg("Starting promptvault server")
		return srv.ListenAndServe(ctx, server.Addr(port))
	}),
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default: server_port setting)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "watch the prompts directory for changes")
}
