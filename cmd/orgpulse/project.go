package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/app"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/theme"
)

func (c *cli) projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects and their per-source aliases",
	}
	cmd.AddCommand(
		c.projectFindCmd(),
		c.projectCreateCmd(),
		c.projectAliasCmd("add-alias", "Add an alias to a project"),
		c.projectAliasCmd("remove-alias", "Remove an alias from a project"),
		c.projectDeactivateCmd(),
		c.projectListCmd(),
	)
	return cmd
}

func (c *cli) projectFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <id-or-alias>",
		Short: "Find a project by id or any alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, ok, err := a.Projects.Find(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no project matches %q", args[0])
				}
				return c.render(cmd.OutOrStdout(), p, func(w io.Writer) { writeProject(w, p) })
			})
		},
	}
}

func (c *cli) projectCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <source> <alias>",
		Short: "Create a project for an alias, or return the one that owns it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := model.ParseSource(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Projects.FindOrCreate(ctx, args[1], src, c.cfg.OrgID)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), p, func(w io.Writer) { writeProject(w, p) })
			})
		},
	}
}

func (c *cli) projectAliasCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <project-id> <source> <alias>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := model.ParseSource(args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if use == "add-alias" {
					err = a.Projects.AddAlias(ctx, args[0], src, args[2])
				} else {
					err = a.Projects.RemoveAlias(ctx, args[0], src, args[2])
				}
				if err != nil {
					return err
				}
				p, err := a.Projects.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), p, func(w io.Writer) { writeProject(w, p) })
			})
		},
	}
}

func (c *cli) projectDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <project-id>",
		Short: "Soft-delete a project; its aliases keep resolving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Projects.Deactivate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s deactivated\n", theme.SuccessStyle.Render("ok"), args[0])
				return nil
			})
		},
	}
}

func (c *cli) projectListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects of the organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				projects, err := a.Projects.List(ctx, c.cfg.OrgID, all)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), projects, func(w io.Writer) {
					fmt.Fprintln(w, theme.HeaderStyle.Render(fmt.Sprintf("%s projects", itoa(len(projects)))))
					for i := range projects {
						fmt.Fprintln(w)
						writeProject(w, &projects[i])
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive projects")
	return cmd
}
