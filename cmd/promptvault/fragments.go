package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thebtf/promptvault/internal/resolve"
	"github.com/thebtf/promptvault/pkg/models"
)

var fragmentsCmd = &cobra.Command{
	Use:   "fragments [category] [name]",
	Short: "List fragments, or print one fragment",
	Args:  cobra.MaximumNArgs(2),
	RunE: runE(func(_ context.Context, a *app, args []string) error {
		if len(args) == 2 {
			content, err := a.lib.ReadFragment(args[0], args[1])
			if err != nil {
				return err
			}
			frag := models.Fragment{Category: args[0], Name: args[1], Content: content}
			return emit(frag, func(w io.Writer) error {
				_, err := io.WriteString(w, content)
				return err
			})
		}

		categories := args
		if len(categories) == 0 {
			var err error
			categories, err = a.lib.FragmentCategories()
			if err != nil {
				return err
			}
		}
		var all []models.Fragment
		for _, c := range categories {
			frags, err := a.lib.ListFragments(c)
			if err != nil {
				return err
			}
			all = append(all, frags...)
		}
		return emit(all, func(w io.Writer) error {
			for _, f := range all {
				fmt.Fprintln(w, resolve.FragmentValue(f.Category, f.Name))
			}
			return nil
		})
	}),
}
