package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/theme"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the configuration file",
	}
	cmd.AddCommand(c.configShowCmd(), c.configInitCmd())
	return cmd
}

func (c *cli) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, defaults and environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			return c.render(cmd.OutOrStdout(), cfg, func(w io.Writer) {
				fmt.Fprintln(w, theme.HeaderStyle.Render(c.configPath))
				fmt.Fprint(w, theme.KeyValue(
					"org", cfg.OrgID,
					"database", cfg.Database.Driver+" "+cfg.Database.DSN,
					"sync interval", cfg.Sync.Interval().String(),
					"lease timeout", cfg.Sync.LeaseTimeout().String(),
					"parallel", fmt.Sprint(cfg.Sync.Parallel),
					"http", cfg.HTTP.Addr,
					"llm model", cfg.LLM.Model,
					"email collector", fmt.Sprint(cfg.Collectors.Email.Enabled()),
					"jira collector", fmt.Sprint(cfg.Collectors.Jira.Enabled()),
				))
			})
		},
	}
}

func (c *cli) configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(c.configPath); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", c.configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := model.SaveConfig(c.configPath, c.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", theme.SuccessStyle.Render("ok"), c.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
