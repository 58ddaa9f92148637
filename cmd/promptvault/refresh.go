package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thebtf/promptvault/internal/metadata"
)

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [directory]",
	Short: "Regenerate sidecar metadata for prompts whose body changed",
	Long: `Regenerate metadata.yml for prompts whose prompt.md no longer matches the
stored content hash. Generation runs the configured metadata_command with the
prompt body on stdin; the command must print sidecar YAML on stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		r := a.refresher()

		var results []metadata.Result
		if len(args) == 1 {
			res, err := r.Refresh(ctx, args[0], refreshForce)
			if err != nil {
				return err
			}
			results = append(results, *res)
		} else {
			var err error
			results, err = r.RefreshAll(ctx, refreshForce)
			if err != nil {
				return err
			}
		}

		return emit(results, func(w io.Writer) error {
			for _, res := range results {
				state := "up to date"
				if res.Regenerated {
					state = "regenerated"
				}
				fmt.Fprintf(w, "%s: %s\n", res.Directory, state)
			}
			return nil
		})
	}),
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "regenerate even when the hash matches")
}
