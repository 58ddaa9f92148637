package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [directory]",
	Short: "Rebuild the index from disk, or sync one prompt directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		if len(args) == 1 {
			if err := a.rec.SyncOne(ctx, args[0]); err != nil {
				return err
			}
			return emit(map[string]any{"synced": 1, "directory": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "synced %s\n", args[0])
				return err
			})
		}

		report, err := a.rec.SyncAll(ctx)
		if err != nil {
			return err
		}
		return emit(report, func(w io.Writer) error {
			fmt.Fprintf(w, "synced %d prompts (%d kept their id) in %s\n", report.Synced, report.Reused, report.Duration)
			for _, s := range report.Skipped {
				fmt.Fprintf(w, "  skipped %s: %s\n", s.Directory, s.Reason)
			}
			return nil
		})
	}),
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove index rows for prompt directories that no longer exist",
	Args:  cobra.NoArgs,
	RunE: runE(func(ctx context.Context, a *app, _ []string) error {
		report, err := a.rec.CleanupOrphans(ctx)
		if err != nil {
			return err
		}
		return emit(report, func(w io.Writer) error {
			if report.Skipped {
				_, err := fmt.Fprintf(w, "cleanup skipped: %s\n", report.SkipReason)
				return err
			}
			_, err := fmt.Fprintf(w,
				"removed %d prompts, %d subcategories, %d fragment links, %d variables (%d shared kept), %d env variables\n",
				report.RemovedPrompts, report.RemovedSubcategories, report.RemovedFragments,
				report.RemovedVariables, report.SharedVariables, len(report.RemovedEnvVariables))
			return err
		})
	}),
}
