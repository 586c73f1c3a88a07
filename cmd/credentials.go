package cmd

import (
	"medallion/internal/security"
	"medallion/internal/ui"
	"medallion/pkg/errors"

	"github.com/spf13/cobra"
)

// newCredentialManager is replaced in tests
var newCredentialManager = security.NewCredentialManager

var credentialValue string

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage stored warehouse passwords",
	Long: `Store warehouse passwords in the system keyring, or in encrypted files under
~/.medallion/credentials when no keyring is available. Reference a stored
password from the config as "keyring:<name>".`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := credentialValue
		if value == "" {
			if !ui.Interactive() {
				return errors.New(errors.ErrCodeInvalidInput, "password is required").
					WithSuggestions("Pass --value or run in a terminal")
			}
			var err error
			if value, err = ui.Password("Password for "+args[0]+":", "stored encrypted; never written to the config"); err != nil {
				return err
			}
		}

		cm, err := newCredentialManager()
		if err != nil {
			return err
		}
		if err := cm.StoreCredential(args[0], "password", value, nil); err != nil {
			return err
		}
		printf(cmd, "stored %s; reference it as %s%s\n", args[0], security.KeyringPrefix, args[0])
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := newCredentialManager()
		if err != nil {
			return err
		}
		if err := cm.DeleteCredential(args[0]); err != nil {
			return err
		}
		printf(cmd, "deleted %s\n", args[0])
		return nil
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored password names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := newCredentialManager()
		if err != nil {
			return err
		}
		names, err := cm.ListCredentials()
		if err != nil {
			return err
		}
		for _, name := range names {
			printf(cmd, "%s\n", name)
		}
		return nil
	},
}

func init() {
	credentialsSetCmd.Flags().StringVar(&credentialValue, "value", "", "password value (prompted when omitted)")
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsDeleteCmd, credentialsListCmd)
	rootCmd.AddCommand(credentialsCmd)
}
