package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/app"
	"github.com/nhle/orgpulse/internal/insight"
	"github.com/nhle/orgpulse/internal/metrics"
	"github.com/nhle/orgpulse/internal/theme"
)

type windowFlags struct {
	start, end string
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "window start, RFC 3339 or YYYY-MM-DD (default 7 days before end)")
	cmd.Flags().StringVar(&f.end, "end", "", "window end, exclusive (default now)")
}

func (f *windowFlags) window() (metrics.Window, error) {
	return metrics.ParseWindow(f.start, f.end, time.Now())
}

func (c *cli) metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute SPACE, FLOW and DORA metrics",
	}
	cmd.AddCommand(c.spaceCmd(), c.flowCmd(), c.doraCmd())
	return cmd
}

func (c *cli) spaceCmd() *cobra.Command {
	var wf windowFlags

	cmd := &cobra.Command{
		Use:   "space <email>",
		Short: "Per-person activity and wellbeing indicators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wf.window()
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Metrics.Space(ctx, c.cfg.OrgID, args[0], w)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), m, func(out io.Writer) { writeSpace(out, m) })
			})
		},
	}
	wf.register(cmd)
	return cmd
}

func (c *cli) flowCmd() *cobra.Command {
	var wf windowFlags

	cmd := &cobra.Command{
		Use:   "flow <project>",
		Short: "Per-project delivery indicators from Jira",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wf.window()
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Metrics.Flow(ctx, c.cfg.OrgID, args[0], w)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), m, func(out io.Writer) { writeFlow(out, m) })
			})
		},
	}
	wf.register(cmd)
	return cmd
}

func (c *cli) doraCmd() *cobra.Command {
	var wf windowFlags

	cmd := &cobra.Command{
		Use:   "dora <project>",
		Short: "Per-project delivery health from GitHub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wf.window()
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Metrics.Dora(ctx, c.cfg.OrgID, args[0], w)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), m, func(out io.Writer) { writeDora(out, m) })
			})
		},
	}
	wf.register(cmd)
	return cmd
}

func (c *cli) insightsCmd() *cobra.Command {
	var (
		wf         windowFlags
		bundleOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarize the organization's metrics with the configured LLM",
		Long: `insights builds a bundle of SPACE metrics per person and FLOW and DORA
metrics per active project, then asks the configured chat model for a
summary. With --bundle the bundle is printed as JSON and no model is called.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := wf.window()
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Insights.ActivityLimit = limit
				bundle, err := a.Insights.Build(ctx, c.cfg.OrgID, w)
				if err != nil {
					return err
				}
				if bundleOnly {
					saved := c.jsonOutput
					c.jsonOutput = true
					defer func() { c.jsonOutput = saved }()
					return c.render(cmd.OutOrStdout(), bundle, nil)
				}

				completer, err := a.Completer()
				if err != nil {
					return err
				}
				summary, err := insight.Summarize(ctx, completer, bundle)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), map[string]any{"summary": summary, "window": w}, func(out io.Writer) {
					fmt.Fprintf(out, "%s %s\n", theme.HeaderStyle.Render("Insights"), windowLine(w))
					fmt.Fprintln(out, theme.PanelStyle.Render(summary))
				})
			})
		},
	}
	wf.register(cmd)
	cmd.Flags().BoolVar(&bundleOnly, "bundle", false, "print the insight bundle instead of summarizing it")
	cmd.Flags().IntVar(&limit, "activities", 0, "maximum raw activities in the bundle (default 200)")
	return cmd
}
