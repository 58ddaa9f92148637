package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/thebtf/promptvault/pkg/models"
)

var historyLimit int

var favoriteCmd = &cobra.Command{
	Use:   "favorite",
	Short: "Manage favorite prompts",
}

var favoriteAddCmd = &cobra.Command{
	Use:   "add <prompt>",
	Short: "Mark a prompt as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		p, err := a.catalog.Find(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.history.AddFavorite(ctx, p.UUID); err != nil {
			return err
		}
		return emit(p, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "added %s\n", p.Directory)
			return err
		})
	}),
}

var favoriteRemoveCmd = &cobra.Command{
	Use:   "remove <prompt>",
	Short: "Unmark a favorite prompt",
	Args:  cobra.ExactArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		p, err := a.catalog.Find(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.history.RemoveFavorite(ctx, p.UUID); err != nil {
			return err
		}
		return emit(p, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "removed %s\n", p.Directory)
			return err
		})
	}),
}

var favoriteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite prompts",
	Args:  cobra.NoArgs,
	RunE: runE(func(ctx context.Context, a *app, _ []string) error {
		favs, err := a.history.Favorites(ctx)
		if err != nil {
			return err
		}
		all, err := a.catalog.All(ctx)
		if err != nil {
			return err
		}
		byUUID := make(map[string]models.Prompt, len(all))
		for _, p := range all {
			byUUID[p.UUID] = p
		}

		// Favorites survive rebuilds by uuid; ones whose prompt is gone are skipped.
		prompts := make([]models.Prompt, 0, len(favs))
		for _, f := range favs {
			if p, ok := byUUID[f.PromptUUID]; ok {
				prompts = append(prompts, p)
			}
		}
		return emit(prompts, func(w io.Writer) error {
			tw := newTable(w)
			for _, p := range prompts {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Directory, p.Title)
			}
			return tw.Flush()
		})
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent prompt resolutions",
	Args:  cobra.NoArgs,
	RunE: runE(func(ctx context.Context, a *app, _ []string) error {
		execs, err := a.history.RecentExecutions(ctx, historyLimit)
		if err != nil {
			return err
		}
		return emit(execs, func(w io.Writer) error {
			tw := newTable(w)
			for _, e := range execs {
				at := time.UnixMilli(e.CreatedAtEpoch).Format(time.DateTime)
				fmt.Fprintf(tw, "%s\t%s\t%d variables\n", at, e.Directory, len(e.Variables))
			}
			return tw.Flush()
		})
	}),
}

func init() {
	favoriteCmd.AddCommand(favoriteAddCmd, favoriteRemoveCmd, favoriteListCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries")
}
