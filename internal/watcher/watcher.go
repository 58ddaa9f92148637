// Package watcher follows changes in the prompt library and keeps the index
// current with targeted syncs instead of full rebuilds.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/internal/reconcile"
)

// DefaultDebounce is how long the watcher waits for a burst of events to settle.
const DefaultDebounce = 250 * time.Millisecond

// syncAttempts bounds retries of a sync that hit a half-written sidecar.
const syncAttempts = 3

// Target receives the sync calls triggered by file events.
type Target interface {
	SyncOne(ctx context.Context, directory string) error
	CleanupOrphans(ctx context.Context) (*reconcile.CleanupReport, error)
}

// Watcher monitors the prompts root and every prompt directory in it.
// fsnotify is not recursive, so each prompt directory gets its own watch.
type Watcher struct {
	lib      *library.Library
	target   Target
	root     string
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	running  bool
	debounce time.Duration
}

// New creates a Watcher for the library's prompts root.
func New(lib *library.Library, target Target, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		lib:      lib,
		target:   target,
		root:     filepath.Clean(lib.PromptsDir()),
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		debounce: debounce,
	}, nil
}

// Start adds the watches and begins processing events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	names, err := w.lib.ValidDirectories()
	if err != nil {
		log.Warn().Err(err).Str("path", w.root).Msg("Failed to list prompt directories")
	}
	for _, name := range names {
		w.addDir(filepath.Join(w.root, name))
	}

	log.Info().Str("path", w.root).Int("directories", len(names)).Msg("Watching prompt library")
	go w.watchLoop()
	return nil
}

// Stop stops the watcher and waits for a pending flush to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) addDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to watch prompt directory")
	}
}

// promptDir maps an event path to the prompt directory it belongs to.
// Events on the root itself map to "".
func (w *Watcher) promptDir(eventPath string) string {
	rel, err := filepath.Rel(w.root, filepath.Clean(eventPath))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	if !library.ValidPromptDir(first) {
		return ""
	}
	return first
}

// watchLoop collects changed directories and flushes them once the events
// have been quiet for the debounce window.
func (w *Watcher) watchLoop() {
	defer close(w.done)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		var fire <-chan time.Time
		if armed {
			fire = timer.C
		}

		select {
		case <-w.ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			dir := w.promptDir(event.Name)
			if dir == "" {
				continue
			}

			// A new prompt directory appeared at the top level
			if event.Op&fsnotify.Create != 0 && filepath.Dir(filepath.Clean(event.Name)) == w.root {
				w.addDir(event.Name)
			}

			log.Debug().Str("directory", dir).Str("op", event.Op.String()).Msg("Prompt library event")
			pending[dir] = struct{}{}
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			armed = true

		case <-fire:
			armed = false
			w.flush(pending)
			pending = make(map[string]struct{})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// flush syncs every changed directory that is still a prompt and runs one
// orphan cleanup if any directory disappeared.
func (w *Watcher) flush(pending map[string]struct{}) {
	dirs := make([]string, 0, len(pending))
	for d := range pending {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	removed := false
	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(w.root, dir)); os.IsNotExist(err) {
			removed = true
			continue
		}
		hasPrompt, hasSidecar := w.lib.HasFiles(dir)
		if !hasPrompt || !hasSidecar {
			log.Debug().Str("directory", dir).Msg("Incomplete prompt directory, waiting")
			continue
		}
		if err := w.syncOne(dir); err != nil {
			log.Warn().Err(err).Str("directory", dir).Msg("Targeted sync failed")
		}
	}

	if removed {
		if _, err := w.target.CleanupOrphans(w.ctx); err != nil {
			log.Warn().Err(err).Msg("Orphan cleanup after removal failed")
		}
	}
}

// syncOne syncs dir, retrying while its sidecar does not parse. Editors often
// truncate the file before writing it back, so the first event can see an
// empty or partial document.
func (w *Watcher) syncOne(dir string) error {
	return retry.Do(
		func() error { return w.target.SyncOne(w.ctx, dir) },
		retry.Context(w.ctx),
		retry.Attempts(syncAttempts),
		retry.Delay(w.debounce),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, library.ErrInvalidSidecar)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Str("directory", dir).Uint("attempt", n+1).Msg("Retrying sync")
		}),
	)
}
