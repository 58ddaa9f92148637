// Package reconcile keeps the prompt index in step with the prompt library on
// disk: full rebuilds, targeted single-prompt syncs and orphan cleanup.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/promptvault/internal/cache"
	"github.com/thebtf/promptvault/internal/db/sqlite"
	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/pkg/models"
)

// EnvCleaner removes prompt-scoped env variables whose prompt is gone.
type EnvCleaner interface {
	CleanupOrphans(ctx context.Context, livePromptIDs []int64) ([]int64, error)
}

// Event describes a completed reconcile operation.
type Event struct {
	Op        string    `json:"op"`
	Directory string    `json:"directory,omitempty"`
	Synced    int       `json:"synced"`
	Skipped   int       `json:"skipped"`
	Removed   int64     `json:"removed"`
	At        time.Time `json:"at"`
}

// Operation names carried by Event.Op.
const (
	OpSyncAll = "sync_all"
	OpSyncOne = "sync_one"
	OpCleanup = "cleanup"
)

// Options configures a Reconciler.
type Options struct {
	// Workers bounds concurrent sidecar parsing. Zero means GOMAXPROCS.
	Workers int
	// OnEvent is called after every successful operation.
	OnEvent func(Event)
}

// Reconciler synchronizes the library into the store.
type Reconciler struct {
	lib     *library.Library
	prompts *sqlite.PromptStore
	envs    EnvCleaner
	cache   *cache.Cache
	opts    Options
	metrics *instruments
}

// New creates a Reconciler. envs and c may be nil.
func New(lib *library.Library, prompts *sqlite.PromptStore, envs EnvCleaner, c *cache.Cache, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Reconciler{
		lib:     lib,
		prompts: prompts,
		envs:    envs,
		cache:   c,
		opts:    opts,
		metrics: newInstruments(),
	}
}

// SkippedDir is a directory left out of a full sync.
type SkippedDir struct {
	Directory string `json:"directory"`
	Reason    string `json:"reason"`
}

// SyncReport summarizes a full sync.
type SyncReport struct {
	Skipped  []SkippedDir  `json:"skipped,omitempty"`
	Synced   int           `json:"synced"`
	Reused   int           `json:"reused_ids"`
	Duration time.Duration `json:"duration"`
}

// parsed is the outcome of reading one prompt directory.
type parsed struct {
	entry *library.Entry
	skip  string
	quiet bool
	name  string
}

// SyncAll rebuilds every prompt row from disk. Directories without both
// prompt.md and metadata.yml, or with a sidecar that fails to parse, are
// skipped and reported. Prompts that were already indexed keep their id and
// their stored variable values. Any store error aborts the rebuild and rolls
// it back.
func (r *Reconciler) SyncAll(ctx context.Context) (report *SyncReport, err error) {
	start := time.Now()
	defer func() { r.metrics.record(ctx, OpSyncAll, start, err) }()

	names, err := r.lib.ListEntries()
	if err != nil {
		return nil, err
	}

	results, err := r.parseAll(ctx, names)
	if err != nil {
		return nil, err
	}

	report = &SyncReport{}
	var entries []*library.Entry
	for _, res := range results {
		switch {
		case res.entry != nil:
			entries = append(entries, res.entry)
		case res.quiet:
			log.Debug().Str("directory", res.name).Str("reason", res.skip).Msg("Ignoring entry")
		default:
			log.Warn().Str("directory", res.name).Str("reason", res.skip).Msg("Skipping prompt directory")
			report.Skipped = append(report.Skipped, SkippedDir{Directory: res.name, Reason: res.skip})
		}
	}

	err = r.prompts.InTx(ctx, func(tx *sqlite.PromptStore) error {
		prevIDs, err := tx.DirectoryIDs(ctx)
		if err != nil {
			return fmt.Errorf("snapshot prompt ids: %w", err)
		}
		prevValues, err := tx.VariableValues(ctx)
		if err != nil {
			return fmt.Errorf("snapshot variable values: %w", err)
		}

		if err := tx.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear prompt index: %w", err)
		}

		// Prompts keeping an old id go first so a fresh id can never take
		// one that is about to be handed back.
		sort.SliceStable(entries, func(i, j int) bool {
			_, iKnown := prevIDs[entries[i].Directory]
			_, jKnown := prevIDs[entries[j].Directory]
			return iKnown && !jKnown
		})

		for _, e := range entries {
			id := prevIDs[e.Directory]
			if err := insertEntry(ctx, tx, e, id, prevValues[e.Directory]); err != nil {
				return err
			}
			if id > 0 {
				report.Reused++
			}
			report.Synced++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync all: %w", err)
	}

	r.invalidate()
	report.Duration = time.Since(start)
	r.metrics.addPrompts(ctx, report.Synced, len(report.Skipped))

	log.Info().
		Int("synced", report.Synced).
		Int("skipped", len(report.Skipped)).
		Int("reusedIds", report.Reused).
		Dur("duration", report.Duration).
		Msg("Prompt library synchronized")

	r.emit(Event{Op: OpSyncAll, Synced: report.Synced, Skipped: len(report.Skipped)})
	return report, nil
}

// parseAll reads every entry concurrently. Results keep the order of names.
func (r *Reconciler) parseAll(ctx context.Context, names []string) ([]parsed, error) {
	results := make([]parsed, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.parseOne(name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Reconciler) parseOne(name string) parsed {
	if strings.HasPrefix(name, ".") {
		return parsed{name: name, skip: "hidden", quiet: true}
	}

	hasPrompt, hasSidecar := r.lib.HasFiles(name)
	switch {
	case !hasPrompt && !hasSidecar:
		return parsed{name: name, skip: "not a prompt directory", quiet: true}
	case !hasPrompt:
		return parsed{name: name, skip: "missing " + library.PromptFile}
	case !hasSidecar:
		return parsed{name: name, skip: "missing " + library.SidecarFile}
	}

	entry, err := r.lib.Load(name)
	if err != nil {
		return parsed{name: name, skip: err.Error()}
	}
	return parsed{name: name, entry: entry}
}

// insertEntry writes one prompt and its children. A positive id is reused;
// values carries previously stored variable values by name.
func insertEntry(ctx context.Context, tx *sqlite.PromptStore, e *library.Entry, id int64, values map[string]string) error {
	p, vars, links := e.ToPrompt()
	p.ID = id

	promptID, err := tx.InsertPrompt(ctx, p)
	if err != nil {
		return fmt.Errorf("insert prompt %s: %w", e.Directory, err)
	}
	return insertChildren(ctx, tx, promptID, p, vars, links, values)
}

func insertChildren(ctx context.Context, tx *sqlite.PromptStore, promptID int64, p *models.Prompt, vars []models.Variable, links []models.FragmentLink, values map[string]string) error {
	for i := range vars {
		if v, ok := values[vars[i].Name]; ok {
			vars[i].Value = v
		}
	}
	if err := tx.InsertSubcategories(ctx, promptID, p.Subcategories); err != nil {
		return fmt.Errorf("insert subcategories for %s: %w", p.Directory, err)
	}
	if err := tx.InsertVariables(ctx, promptID, vars); err != nil {
		return fmt.Errorf("insert variables for %s: %w", p.Directory, err)
	}
	if err := tx.InsertFragmentLinks(ctx, promptID, links); err != nil {
		return fmt.Errorf("insert fragments for %s: %w", p.Directory, err)
	}
	return nil
}

// SyncOne re-reads a single prompt directory and upserts it, replacing its
// children. Other prompts are untouched and stored variable values survive.
func (r *Reconciler) SyncOne(ctx context.Context, directory string) (err error) {
	start := time.Now()
	defer func() { r.metrics.record(ctx, OpSyncOne, start, err) }()

	entry, err := r.lib.Load(directory)
	if err != nil {
		return fmt.Errorf("sync %s: %w", directory, err)
	}

	var promptID int64
	err = r.prompts.InTx(ctx, func(tx *sqlite.PromptStore) error {
		values := map[string]string{}
		existing, err := tx.GetPromptByDirectory(ctx, directory)
		switch {
		case err == nil:
			vars, err := tx.GetVariables(ctx, existing.ID)
			if err != nil {
				return err
			}
			for _, v := range vars {
				if v.Value != "" {
					values[v.Name] = v.Value
				}
			}
		case !errors.Is(err, sqlite.ErrNotFound):
			return err
		}

		p, vars, links := entry.ToPrompt()
		promptID, err = tx.UpsertPrompt(ctx, p)
		if err != nil {
			return fmt.Errorf("upsert prompt: %w", err)
		}
		if err := tx.DeleteChildren(ctx, promptID); err != nil {
			return err
		}
		return insertChildren(ctx, tx, promptID, p, vars, links, values)
	})
	if err != nil {
		return fmt.Errorf("sync %s: %w", directory, err)
	}

	r.invalidate()
	r.metrics.addPrompts(ctx, 1, 0)
	log.Info().Str("directory", directory).Int64("promptId", promptID).Msg("Prompt synchronized")
	r.emit(Event{Op: OpSyncOne, Directory: directory, Synced: 1})
	return nil
}

// CleanupReport summarizes an orphan cleanup.
type CleanupReport struct {
	SkipReason           string  `json:"skip_reason,omitempty"`
	RemovedEnvVariables  []int64 `json:"removed_env_variables,omitempty"`
	RemovedPrompts       int64   `json:"removed_prompts"`
	RemovedSubcategories int64   `json:"removed_subcategories"`
	RemovedFragments     int64   `json:"removed_fragments"`
	RemovedVariables     int64   `json:"removed_variables"`
	SharedVariables      int64   `json:"shared_variables"`
	Skipped              bool    `json:"skipped"`
}

// Removed returns the total number of rows removed.
func (c *CleanupReport) Removed() int64 {
	return c.RemovedPrompts + c.RemovedSubcategories + c.RemovedFragments +
		c.RemovedVariables + int64(len(c.RemovedEnvVariables))
}

// CleanupOrphans removes index rows whose prompt directory no longer exists.
// Variables and prompt-scoped env variables are kept while their name is still
// in use elsewhere. If the prompts root cannot be listed or holds no valid
// prompt directory, nothing is deleted and the report is marked skipped.
func (r *Reconciler) CleanupOrphans(ctx context.Context) (report *CleanupReport, err error) {
	start := time.Now()
	defer func() { r.metrics.record(ctx, OpCleanup, start, err) }()

	report = &CleanupReport{}

	dirs, err := r.lib.ValidDirectories()
	if err != nil {
		log.Warn().Err(err).Msg("Orphan cleanup skipped, prompts directory unreadable")
		report.Skipped, report.SkipReason = true, err.Error()
		return report, nil
	}
	if len(dirs) == 0 {
		log.Warn().Str("dir", r.lib.PromptsDir()).Msg("Orphan cleanup skipped, no prompt directories found")
		report.Skipped, report.SkipReason = true, "no prompt directories on disk"
		return report, nil
	}

	var live []int64
	err = r.prompts.InTx(ctx, func(tx *sqlite.PromptStore) error {
		removed, err := tx.DeletePromptsNotIn(ctx, dirs)
		if err != nil {
			return fmt.Errorf("delete orphan prompts: %w", err)
		}
		report.RemovedPrompts = removed

		links, err := tx.DeleteDanglingLinks(ctx)
		if err != nil {
			return err
		}
		report.RemovedSubcategories = links["subcategories"]
		report.RemovedFragments = links["prompt_fragments"]

		report.RemovedVariables, report.SharedVariables, err = tx.DeleteUnsharedDanglingVariables(ctx)
		if err != nil {
			return err
		}

		live, err = tx.PromptIDs(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup orphans: %w", err)
	}

	// Env variables live in the ORM-managed table; the prompt transaction has
	// released the connection by now.
	if r.envs != nil {
		removedEnv, err := r.envs.CleanupOrphans(ctx, live)
		if err != nil {
			r.invalidate()
			return nil, fmt.Errorf("cleanup orphan env variables: %w", err)
		}
		report.RemovedEnvVariables = removedEnv
	}

	r.invalidate()
	r.metrics.addRemoved(ctx, "prompts", report.RemovedPrompts)
	r.metrics.addRemoved(ctx, "subcategories", report.RemovedSubcategories)
	r.metrics.addRemoved(ctx, "prompt_fragments", report.RemovedFragments)
	r.metrics.addRemoved(ctx, "variables", report.RemovedVariables)
	r.metrics.addRemoved(ctx, "env_variables", int64(len(report.RemovedEnvVariables)))

	log.Info().
		Int64("prompts", report.RemovedPrompts).
		Int64("variables", report.RemovedVariables).
		Int64("sharedVariables", report.SharedVariables).
		Int("envVariables", len(report.RemovedEnvVariables)).
		Msg("Orphan cleanup finished")

	r.emit(Event{Op: OpCleanup, Removed: report.Removed()})
	return report, nil
}

func (r *Reconciler) invalidate() {
	if r.cache != nil {
		r.cache.Invalidate()
	}
}

func (r *Reconciler) emit(ev Event) {
	if r.opts.OnEvent == nil {
		return
	}
	ev.At = time.Now()
	r.opts.OnEvent(ev)
}
