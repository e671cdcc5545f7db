package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/app"
	"github.com/nhle/orgpulse/internal/model"
	orgsync "github.com/nhle/orgpulse/internal/sync"
	"github.com/nhle/orgpulse/internal/theme"
)

func (c *cli) transformCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "transform [source|all]",
		Short: "Transform raw records into activities",
		Long: `Transform runs one source transformer, or all of them in order
(email, slack, github, jira). Each run reads raw records received since the
last successful run unless --full is given.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: append(sourceNames(), "all"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "all"
			if len(args) == 1 {
				target = args[0]
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var results []orgsync.RunResult
				if target == "all" {
					if full {
						results = a.Orchestrator.RunAllFull(ctx)
					} else {
						results = a.Orchestrator.RunAll(ctx)
					}
				} else {
					src, err := model.ParseSource(target)
					if err != nil {
						return err
					}
					if full {
						results = []orgsync.RunResult{a.Orchestrator.RunFull(ctx, src)}
					} else {
						results = []orgsync.RunResult{a.Orchestrator.RunTransformer(ctx, src)}
					}
				}

				if err := c.render(cmd.OutOrStdout(), results, func(w io.Writer) { writeRunResults(w, results) }); err != nil {
					return err
				}
				for _, r := range results {
					if !r.Success {
						return fmt.Errorf("%s transform did not succeed", r.Source)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "ignore the watermark and reprocess every raw record")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the transform state of every source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				states, err := a.Orchestrator.Status(ctx)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), states, func(w io.Writer) { writeStates(w, states) })
			})
		},
	}
}

func (c *cli) resetRunCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "reset-run <source>",
		Short: "Clear a stuck running flag",
		Long: `reset-run clears the running flag of a source so the next transform can
start. With --purge the activities of the source are deleted as well and the
next transform rebuilds them from raw records.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: sourceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := model.ParseSource(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Orchestrator.ResetRun(ctx, src); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s running flag cleared for %s\n", theme.SuccessStyle.Render("ok"), src)

				if purge {
					n, err := a.Store.ResetActivities(ctx, &src)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s deleted %s %s activities\n", theme.SuccessStyle.Render("ok"), itoa(int(n)), src)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete the source's activities")
	return cmd
}

func (c *cli) orphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "Count activities without a resolved identity or project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				counts, err := a.Store.CountOrphans(ctx, c.cfg.OrgID)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), counts, func(w io.Writer) { writeOrphans(w, counts) })
			})
		},
	}
}

func sourceNames() []string {
	names := make([]string, len(model.AllSources))
	for i, s := range model.AllSources {
		names[i] = string(s)
	}
	return names
}
