package main

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/orgpulse/internal/credential"
	"github.com/nhle/orgpulse/internal/theme"
)

func (c *cli) credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Store collector and LLM secrets in the OS keyring",
		Long: fmt.Sprintf(`credential manages the secrets orgpulse reads from the OS keyring.
Known keys: %s. An ORGPULSE_<KEY> environment variable, e.g. %s,
takes precedence over the keyring.`, strings.Join(credential.Keys, ", "), credential.EnvName(credential.KeyJiraToken)),
	}
	cmd.AddCommand(c.credentialSetCmd(), c.credentialDeleteCmd())
	return cmd
}

func validKey(key string) error {
	if !slices.Contains(credential.Keys, key) {
		return fmt.Errorf("unknown credential %q (known: %s)", key, strings.Join(credential.Keys, ", "))
	}
	return nil
}

func (c *cli) credentialSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set <key>",
		Short:     "Read a secret from stdin and store it",
		Args:      cobra.ExactArgs(1),
		ValidArgs: credential.Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validKey(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s: ", args[0])
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading secret: %w", err)
			}
			secret := strings.TrimSpace(line)
			if secret == "" {
				return fmt.Errorf("empty secret")
			}
			if err := credential.New().Set(args[0], secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s stored\n", theme.SuccessStyle.Render("ok"), args[0])
			return nil
		},
	}
}

func (c *cli) credentialDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "delete <key>",
		Short:     "Remove a secret from the keyring",
		Args:      cobra.ExactArgs(1),
		ValidArgs: credential.Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validKey(args[0]); err != nil {
				return err
			}
			if err := credential.New().Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s deleted\n", theme.SuccessStyle.Render("ok"), args[0])
			return nil
		},
	}
}
