package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thebtf/promptvault/internal/catalog"
	"github.com/thebtf/promptvault/internal/resolve"
)

var (
	listCategory string
	showBody     bool
	searchLimit  int
	resolveSet   []string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts grouped by primary category",
	Args:  cobra.NoArgs,
	RunE: runE(func(ctx context.Context, a *app, _ []string) error {
		groups, err := a.catalog.ByCategory(ctx)
		if err != nil {
			return err
		}
		if listCategory != "" {
			var filtered []catalog.Category
			for _, g := range groups {
				if g.Name == listCategory {
					filtered = append(filtered, g)
				}
			}
			groups = filtered
		}
		return emit(groups, func(w io.Writer) error {
			tw := newTable(w)
			for _, g := range groups {
				fmt.Fprintf(tw, "%s\n", g.Name)
				for _, p := range g.Prompts {
					fmt.Fprintf(tw, "  %d\t%s\t%s\t%d tokens\n", p.ID, p.Directory, p.Title, p.TokenCount)
				}
			}
			return tw.Flush()
		})
	}),
}

var showCmd = &cobra.Command{
	Use:   "show <prompt>",
	Short: "Show a prompt with its variables",
	Long: `Show a prompt. The prompt is matched by numeric id, exact directory name,
unique directory substring or unique title substring, in that order.`,
	Args: cobra.ExactArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		detail, err := a.catalog.Detail(ctx, args[0])
		if err != nil {
			return err
		}
		if !showBody {
			detail.Body = ""
		}
		return emit(detail, func(w io.Writer) error {
			fmt.Fprintf(w, "%s (%d)\n", detail.Title, detail.ID)
			fmt.Fprintf(w, "  directory:  %s\n", detail.Directory)
			fmt.Fprintf(w, "  category:   %s\n", detail.PrimaryCategory)
			if len(detail.Subcategories) > 0 {
				fmt.Fprintf(w, "  also in:    %s\n", strings.Join(detail.Subcategories, ", "))
			}
			if len(detail.Tags) > 0 {
				fmt.Fprintf(w, "  tags:       %s\n", strings.Join(detail.Tags, ", "))
			}
			fmt.Fprintf(w, "  tokens:     %d\n", detail.TokenCount)
			if detail.OneLineDescription != "" {
				fmt.Fprintf(w, "\n%s\n", detail.OneLineDescription)
			}
			if len(detail.Variables) > 0 {
				fmt.Fprintln(w, "\nvariables:")
				tw := newTable(w)
				for _, v := range detail.Variables {
					optional := ""
					if v.OptionalForUser {
						optional = "optional"
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", v.Name, v.Value, optional, v.Role)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			for _, f := range detail.Fragments {
				fmt.Fprintf(w, "  fragment %s/%s -> %s\n", f.Category, f.Name, f.Variable)
			}
			if showBody {
				fmt.Fprintf(w, "\n%s\n", detail.Body)
			}
			return nil
		})
	}),
}

var searchCmd = &cobra.Command{
	Use:   "search <terms...>",
	Short: "Full-text search over titles, descriptions, tags and bodies",
	Args:  cobra.MinimumNArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		prompts, err := a.catalog.Search(ctx, strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
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

var resolveCmd = &cobra.Command{
	Use:   "resolve <prompt>",
	Short: "Resolve a prompt's variable values",
	Long: `Resolve every variable of a prompt to its concrete value. Stored values are
used unless overridden with --set NAME=VALUE. References that cannot be
resolved are printed unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		overrides, err := parseAssignments(resolveSet)
		if err != nil {
			return err
		}
		detail, err := a.catalog.Detail(ctx, args[0])
		if err != nil {
			return err
		}
		resolved, err := a.resolveValues(ctx, detail, overrides)
		if err != nil {
			return err
		}
		return emit(resolved, func(w io.Writer) error {
			names := make([]string, 0, len(resolved))
			for name := range resolved {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(w, "%s=%s\n", name, resolved[name])
			}
			return nil
		})
	}),
}

var varCmd = &cobra.Command{
	Use:   "var",
	Short: "Edit stored variable values",
}

var varSetCmd = &cobra.Command{
	Use:   "set <prompt> <name> <value>",
	Short: "Store a variable value",
	Long: `Store a value for a prompt variable. The value may be a literal, a fragment
reference ($fragment:category/name) or an env reference ($env:NAME).`,
	Args: cobra.ExactArgs(3),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		p, err := a.catalog.Find(ctx, args[0])
		if err != nil {
			return err
		}
		name, value := args[1], args[2]
		if err := a.catalog.SetVariableValue(ctx, p.ID, name, value); err != nil {
			return err
		}
		kind := "literal"
		switch resolve.Parse(value).(type) {
		case resolve.FragmentRef:
			kind = "fragment"
		case resolve.EnvRef:
			kind = "env"
		}
		return emit(map[string]any{"directory": p.Directory, "name": name, "value": value, "kind": kind}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "%s: %s = %s (%s)\n", p.Directory, name, value, kind)
			return err
		})
	}),
}

// parseAssignments turns NAME=VALUE pairs into a map.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid assignment %q, want NAME=VALUE", pair)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

func init() {
	listCmd.Flags().StringVar(&listCategory, "category", "", "only show this primary category")
	showCmd.Flags().BoolVar(&showBody, "body", false, "include the prompt body")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	resolveCmd.Flags().StringArrayVar(&resolveSet, "set", nil, "override a variable value (NAME=VALUE)")

	varCmd.AddCommand(varSetCmd)
}
