// Command orgpulse transforms collected tool activity into a canonical log
// and reports team metrics over it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/app"
	"github.com/nhle/orgpulse/internal/logger"
	"github.com/nhle/orgpulse/internal/model"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	orgID      string
	jsonOutput bool
	debug      bool

	cfg *model.AppConfig
	log zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "orgpulse",
		Short: "Normalize email, Slack, GitHub and Jira activity and report SPACE, FLOW and DORA metrics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", model.DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&c.orgID, "org", "", "organization id (overrides org_id)")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print JSON instead of styled text")
	root.PersistentFlags().BoolVarP(&c.debug, "debug", "d", false, "debug logging")

	root.AddCommand(
		c.transformCmd(),
		c.statusCmd(),
		c.resetRunCmd(),
		c.orphansCmd(),
		c.importCmd(),
		c.collectCmd(),
		c.identityCmd(),
		c.projectCmd(),
		c.metricsCmd(),
		c.insightsCmd(),
		c.credentialCmd(),
		c.serveCmd(),
		c.configCmd(),
	)
	return root
}

func (c *cli) init() error {
	cfg, err := model.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.orgID != "" {
		cfg.OrgID = c.orgID
	}
	level := cfg.Log.Level
	if c.debug {
		level = "debug"
	}
	c.cfg = cfg
	c.log = logger.New("orgpulse", level, cfg.Log.Pretty)
	return nil
}

// withApp builds the App for one command and closes it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.log.Warn().Err(err).Msg("closing store failed")
		}
	}()
	return fn(ctx, a)
}
