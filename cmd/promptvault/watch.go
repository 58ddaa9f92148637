package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/promptvault/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index in sync with the prompts directory",
	Args:  cobra.NoArgs,
	RunE: runE(func(ctx context.Context, a *app, _ []string) error {
		stop, err := a.startWatching(ctx)
		if err != nil {
			return err
		}
		defer stop()

		<-ctx.Done()
		log.Info().Msg("Stopping watcher")
		return nil
	}),
}

// startWatching does an initial full sync, then watches the prompts root.
func (a *app) startWatching(ctx context.Context) (func(), error) {
	if _, err := a.rec.SyncAll(ctx); err != nil {
		return nil, err
	}

	w, err := watcher.New(a.lib, a.rec, a.cfg.WatchDebounce)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	log.Info().Str("path", a.lib.PromptsDir()).Msg("Prompt directory watcher started")

	return func() {
		if err := w.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop watcher")
		}
	}, nil
}
