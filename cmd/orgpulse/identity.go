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

func (c *cli) identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "identity",
		Aliases: []string{"id"},
		Short:   "Manage people and their accounts across tools",
	}
	cmd.AddCommand(
		c.identityResolveCmd(),
		c.identityCreateCmd(),
		c.identityLinkCmd(),
		c.identityAddEmailCmd(),
		c.identityListCmd(),
	)
	return cmd
}

func (c *cli) identityResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <email>",
		Short: "Find the identity owning an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				id, ok, err := a.Identities.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no identity owns %s", args[0])
				}
				ident, err := a.Identities.Get(ctx, id)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), ident, func(w io.Writer) { writeIdentity(w, ident) })
			})
		},
	}
}

func (c *cli) identityCreateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an identity, or return the one that owns the email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				ident, err := a.Identities.FindOrCreate(ctx, args[0], name, c.cfg.OrgID)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), ident, func(w io.Writer) { writeIdentity(w, ident) })
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default derived from the email)")
	return cmd
}

func (c *cli) identityLinkCmd() *cobra.Command {
	var login, team string

	cmd := &cobra.Command{
		Use:   "link <email> <github|slack|jira> <account-id>",
		Short: "Attach a tool account to the identity owning an email",
		Long: `link records the account id a tool uses for a person, so activities that
carry only the account id resolve to the identity. For GitHub pass the
numeric user id and --login; for Slack the user id and optionally --team.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := model.ParseSource(args[1])
			if err != nil {
				return err
			}
			acct := model.Account{Source: src, ID: args[2], Login: login, TeamID: team}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				ident, ok, err := a.Identities.LinkAccount(ctx, args[0], acct)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no identity owns %s; create it first", args[0])
				}
				return c.render(cmd.OutOrStdout(), ident, func(w io.Writer) { writeIdentity(w, ident) })
			})
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "GitHub login")
	cmd.Flags().StringVar(&team, "team", "", "Slack team id")
	return cmd
}

func (c *cli) identityAddEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-email <primary-email> <alternate-email>",
		Short: "Add an alternate email to an identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Identities.AddAlternateEmail(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s now also matches %s\n",
					theme.SuccessStyle.Render("ok"), model.NormalizeEmail(args[0]), model.NormalizeEmail(args[1]))
				return nil
			})
		},
	}
}

func (c *cli) identityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List identities of the organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				idents, err := a.Identities.List(ctx, c.cfg.OrgID)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), idents, func(w io.Writer) {
					fmt.Fprintln(w, theme.HeaderStyle.Render(fmt.Sprintf("%s identities", itoa(len(idents)))))
					for i := range idents {
						fmt.Fprintln(w)
						writeIdentity(w, &idents[i])
					}
				})
			})
		},
	}
}
