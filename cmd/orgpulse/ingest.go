package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/app"
	"github.com/nhle/orgpulse/internal/ingest"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source/email"
	"github.com/nhle/orgpulse/internal/theme"
)

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <source> <file>...",
		Short: "Store raw records from exported files",
		Long: `import reads a JSON array or newline-delimited JSON objects and stores
each element as a raw record of the source. For email, .eml files are
parsed as single messages. Use "-" to read from stdin.`,
		Args:      cobra.MinimumNArgs(2),
		ValidArgs: sourceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := model.ParseSource(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var total ingest.ImportResult
				for _, path := range args[1:] {
					res, err := importFile(ctx, a, src, path)
					total.Stored += res.Stored
					total.Failed += res.Failed
					if err != nil {
						return fmt.Errorf("importing %s: %w", path, err)
					}
				}
				return c.render(cmd.OutOrStdout(), total, func(w io.Writer) {
					fmt.Fprintf(w, "%s stored %s %s records", theme.SuccessStyle.Render("ok"), itoa(total.Stored), src)
					if total.Failed > 0 {
						fmt.Fprintf(w, ", %s", theme.WarnStyle.Render(itoa(total.Failed)+" skipped"))
					}
					fmt.Fprintln(w)
				})
			})
		},
	}
}

func importFile(ctx context.Context, a *app.App, src model.Source, path string) (ingest.ImportResult, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return ingest.ImportResult{}, err
		}
		defer f.Close()
		r = f
	}

	if src == model.SourceEmail && strings.EqualFold(filepath.Ext(path), ".eml") {
		if _, err := email.ImportEML(ctx, a.Store, a.Config.OrgID, r); err != nil {
			return ingest.ImportResult{}, err
		}
		return ingest.ImportResult{Stored: 1}, nil
	}
	return a.Ingester.Import(ctx, src, r)
}

func (c *cli) collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Pull raw records from a configured source",
	}
	cmd.AddCommand(c.collectEmailCmd(), c.collectJiraCmd())
	return cmd
}

func (c *cli) collectEmailCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "email",
		Short: "Fetch message envelopes from the configured IMAP mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				col, err := a.EmailCollector()
				if err != nil {
					return err
				}
				if days <= 0 {
					days = c.cfg.Sync.InitialLookbackDays
				}
				n, err := col.Collect(ctx, time.Now().AddDate(0, 0, -days))
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), map[string]int{"stored": n}, func(w io.Writer) {
					fmt.Fprintf(w, "%s stored %s messages\n", theme.SuccessStyle.Render("ok"), itoa(n))
				})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "look back this many days (default sync.initial_lookback_days)")
	return cmd
}

func (c *cli) collectJiraCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "jira",
		Short: "Fetch issues matching the configured JQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				col, err := a.JiraCollector()
				if err != nil {
					return err
				}
				if check {
					msg, err := col.ValidateConnection(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render("ok")+" "+msg)
					return nil
				}
				n, err := col.Collect(ctx)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), map[string]int{"stored": n}, func(w io.Writer) {
					fmt.Fprintf(w, "%s stored %s issues\n", theme.SuccessStyle.Render("ok"), itoa(n))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only verify the connection and credentials")
	return cmd
}
