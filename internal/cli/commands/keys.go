package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewKeysCmd creates the keys command group
func NewKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	cmd.AddCommand(newKeysListCmd())
	cmd.AddCommand(newKeysCreateCmd())
	cmd.AddCommand(newKeysRevokeCmd())

	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			keys, err := newAPIClient(server).ListKeys()
			if err != nil {
				return err
			}

			if len(keys) == 0 {
				fmt.Println("No API keys. Run 'cryptopilot keys create' to mint one.")
				return nil
			}

			fmt.Printf("%-28s %-20s %-10s %s\n", "ID", "NAME", "PREFIX", "PERMISSIONS")
			for _, k := range keys {
				fmt.Printf("%-28s %-20s %-10s %s\n", k.ID, k.Name, k.Prefix, k.Permissions)
			}
			return nil
		},
	}
}

func newKeysCreateCmd() *cobra.Command {
	var permissions string
	var expiresInDays int

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			key, plaintext, err := newAPIClient(server).CreateKey(args[0], permissions, expiresInDays)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Created key %s (%s)\n", key.Name, key.ID)
			fmt.Printf("\n  %s\n\n", plaintext)
			fmt.Println("Store this key now; it will not be shown again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&permissions, "permissions", "read", "Key permissions (read, write, admin)")
	cmd.Flags().IntVar(&expiresInDays, "expires-in", 0, "Expiry in days (0 = never)")

	return cmd
}

func newKeysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			if err := newAPIClient(server).DeleteKey(args[0]); err != nil {
				return err
			}

			fmt.Printf("✓ Revoked key %s\n", args[0])
			return nil
		},
	}
}
