package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thebtf/promptvault/pkg/models"
)

var envPrompt string

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage env variables referenced as $env:NAME",
	Long: `Env variables are either global or scoped to one prompt. A prompt-scoped
variable shadows a global one with the same name. A value may itself be
$env:OTHER, which is followed when resolving.`,
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List env variables (all, or those visible to --prompt)",
	Args:  cobra.NoArgs,
	RunE: runE(func(ctx context.Context, a *app, _ []string) error {
		var (
			vars []models.EnvVariable
			err  error
		)
		if envPrompt != "" {
			var promptID int64
			promptID, err = a.envPromptID(ctx)
			if err != nil {
				return err
			}
			vars, err = a.envs.ListInScope(ctx, promptID)
		} else {
			vars, err = a.envs.List(ctx)
		}
		if err != nil {
			return err
		}
		return emit(vars, func(w io.Writer) error {
			tw := newTable(w)
			for _, v := range vars {
				scope := "global"
				if !v.IsGlobal() {
					scope = fmt.Sprintf("prompt %d", v.PromptID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Name, v.Value, scope)
			}
			return tw.Flush()
		})
	}),
}

var envSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Set a global env variable, or a prompt-scoped one with --prompt",
	Args:  cobra.ExactArgs(2),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		promptID, err := a.envPromptID(ctx)
		if err != nil {
			return err
		}
		var v models.EnvVariable
		if promptID == 0 {
			v, err = a.envs.SetGlobal(ctx, args[0], args[1])
		} else {
			v, err = a.envs.SetForPrompt(ctx, promptID, args[0], args[1])
		}
		if err != nil {
			return err
		}
		return emit(v, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "%s=%s\n", v.Name, v.Value)
			return err
		})
	}),
}

var envUnsetCmd = &cobra.Command{
	Use:   "unset <name>",
	Short: "Remove an env variable",
	Args:  cobra.ExactArgs(1),
	RunE: runE(func(ctx context.Context, a *app, args []string) error {
		promptID, err := a.envPromptID(ctx)
		if err != nil {
			return err
		}
		removed, err := a.envs.Delete(ctx, promptID, args[0])
		if err != nil {
			return err
		}
		return emit(map[string]any{"name": args[0], "removed": removed}, func(w io.Writer) error {
			if !removed {
				_, err := fmt.Fprintf(w, "%s was not set\n", args[0])
				return err
			}
			_, err := fmt.Fprintf(w, "removed %s\n", args[0])
			return err
		})
	}),
}

// envPromptID resolves --prompt to a prompt id. Zero means global.
func (a *app) envPromptID(ctx context.Context) (int64, error) {
	if envPrompt == "" {
		return 0, nil
	}
	p, err := a.catalog.Find(ctx, envPrompt)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func init() {
	envCmd.PersistentFlags().StringVar(&envPrompt, "prompt", "", "scope to this prompt (id, directory or title)")
	envCmd.AddCommand(envListCmd, envSetCmd, envUnsetCmd)
}
