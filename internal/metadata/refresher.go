package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/internal/staleness"
	"github.com/thebtf/promptvault/pkg/models"
)

// Syncer applies a changed prompt directory to the index.
type Syncer interface {
	SyncOne(ctx context.Context, directory string) error
}

// Result describes one refresh.
type Result struct {
	Directory   string `json:"directory"`
	Hash        string `json:"hash"`
	Regenerated bool   `json:"regenerated"`
}

// Refresher regenerates sidecars whose content hash no longer matches.
type Refresher struct {
	lib       *library.Library
	generator Generator
	syncer    Syncer
}

// NewRefresher creates a Refresher.
func NewRefresher(lib *library.Library, generator Generator, syncer Syncer) *Refresher {
	return &Refresher{lib: lib, generator: generator, syncer: syncer}
}

// Refresh checks one prompt directory and, when its body changed or force is
// set, asks the generator for new metadata, writes the sidecar, stores the new
// hash and syncs the prompt. Fields the generator leaves empty keep their
// current values, and variable values are never part of the sidecar.
func (r *Refresher) Refresh(ctx context.Context, directory string, force bool) (*Result, error) {
	body, err := r.lib.ReadBody(directory)
	if err != nil {
		return nil, err
	}

	current, err := r.lib.ReadMetadata(directory)
	if err != nil && !errors.Is(err, library.ErrNotFound) {
		// A broken sidecar is regenerated from scratch
		log.Warn().Err(err).Str("directory", directory).Msg("Existing sidecar unreadable")
		current = nil
	}

	needed, hash := staleness.ShouldRegenerate(body, current, force)
	res := &Result{Directory: directory, Hash: hash}
	if !needed {
		log.Debug().Str("directory", directory).Msg("Metadata up to date")
		return res, nil
	}

	generated, err := r.generator.Generate(ctx, body, current)
	if err != nil {
		return nil, fmt.Errorf("generate metadata for %s: %w", directory, err)
	}
	merged := merge(current, generated)
	merged.Directory = directory
	merged.ContentHash = ""

	if err := r.lib.WriteMetadata(directory, merged); err != nil {
		return nil, err
	}
	// A failed hash write only means the next run regenerates again
	_ = staleness.PersistHash(r.lib.FS(), r.lib.SidecarPath(directory), hash)

	if r.syncer != nil {
		if err := r.syncer.SyncOne(ctx, directory); err != nil {
			return nil, err
		}
	}

	res.Regenerated = true
	log.Info().Str("directory", directory).Str("hash", hash).Msg("Metadata regenerated")
	return res, nil
}

// RefreshAll refreshes every prompt directory. A failing directory is logged
// and does not stop the others.
func (r *Refresher) RefreshAll(ctx context.Context, force bool) ([]Result, error) {
	dirs, err := r.lib.ValidDirectories()
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if hasPrompt, _ := r.lib.HasFiles(dir); !hasPrompt {
			continue
		}
		res, err := r.Refresh(ctx, dir, force)
		if err != nil {
			log.Warn().Err(err).Str("directory", dir).Msg("Metadata refresh failed")
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

func merge(current, generated *models.PromptMetadata) *models.PromptMetadata {
	out := *generated
	if current == nil {
		return &out
	}
	if out.PrimaryCategory == "" {
		out.PrimaryCategory = current.PrimaryCategory
	}
	if out.OneLineDescription == "" {
		out.OneLineDescription = current.OneLineDescription
	}
	if out.Description == "" {
		out.Description = current.Description
	}
	if len(out.Subcategories) == 0 {
		out.Subcategories = current.Subcategories
	}
	if len(out.Tags) == 0 {
		out.Tags = current.Tags
	}
	if len(out.Variables) == 0 {
		out.Variables = current.Variables
	}
	if len(out.Fragments) == 0 {
		out.Fragments = current.Fragments
	}
	return &out
}
