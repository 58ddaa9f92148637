package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"

	"github.com/thebtf/promptvault/internal/cache"
	"github.com/thebtf/promptvault/internal/catalog"
	"github.com/thebtf/promptvault/internal/config"
	dbgorm "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/internal/db/sqlite"
	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/internal/metadata"
	"github.com/thebtf/promptvault/internal/reconcile"
	"github.com/thebtf/promptvault/internal/resolve"
	"github.com/thebtf/promptvault/internal/server/sse"
	"github.com/thebtf/promptvault/pkg/models"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	db       *dbgorm.Store
	raw      *sqlite.Store
	prompts  *sqlite.PromptStore
	envs     *dbgorm.EnvStore
	history  *dbgorm.HistoryStore
	cache    *cache.Cache
	lib      *library.Library
	rec      *reconcile.Reconciler
	catalog  *catalog.Catalog
	resolver *resolve.Resolver
	events   *sse.Broadcaster
}

func openApp(cfg *config.Config) (*app, error) {
	if err := config.EnsureLibrary(cfg); err != nil {
		return nil, fmt.Errorf("prepare library: %w", err)
	}

	gs, err := dbgorm.NewStore(dbgorm.Config{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		db:     gs,
		raw:    sqlite.NewStoreFromDB(gs.GetRawDB()),
		envs:   dbgorm.NewEnvStore(gs),
		cache:  cache.New(cfg.CacheTTL),
		lib:    library.New(nil, cfg.PromptsDir, cfg.FragmentsDir),
		events: sse.NewBroadcaster(),
	}
	a.history = dbgorm.NewHistoryStore(gs)
	a.prompts = sqlite.NewPromptStore(a.raw)
	a.rec = reconcile.New(a.lib, a.prompts, a.envs, a.cache, reconcile.Options{
		Workers: cfg.ParseWorkers,
		OnEvent: func(ev reconcile.Event) { a.events.Publish(ev.Op, ev) },
	})
	a.catalog = catalog.New(a.prompts, a.cache)
	a.resolver = resolve.New(a.lib, a.envs)

	log.Debug().
		Str("db", cfg.DBPath).
		Str("prompts", cfg.PromptsDir).
		Str("fragments", cfg.FragmentsDir).
		Msg("Opened prompt index")
	return a, nil
}

func (a *app) Close() {
	if err := a.raw.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close statement cache")
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

func (a *app) refresher() *metadata.Refresher {
	gen := &metadata.CommandGenerator{Command: a.cfg.MetadataCommand}
	return metadata.NewRefresher(a.lib, gen, a.rec)
}

// resolveValues merges stored variable values with overrides and resolves
// every reference. The run is recorded in the execution history.
func (a *app) resolveValues(ctx context.Context, detail *models.PromptDetail, overrides map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(detail.Variables)+len(overrides))
	for _, v := range detail.Variables {
		values[v.Name] = v.Value
	}
	for k, v := range overrides {
		values[k] = v
	}

	resolved, err := a.resolver.ResolveAll(ctx, detail.ID, values)
	if err != nil {
		return nil, err
	}

	if _, err := a.history.RecordExecution(ctx, models.Execution{
		PromptUUID: detail.UUID,
		Directory:  detail.Directory,
		Variables:  values,
	}); err != nil {
		log.Warn().Err(err).Str("directory", detail.Directory).Msg("Failed to record execution")
	}
	return resolved, nil
}

// withApp opens the index for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// runE adapts fn to a cobra RunE that opens the index first.
func runE(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return fn(ctx, a, args)
		})
	}
}
