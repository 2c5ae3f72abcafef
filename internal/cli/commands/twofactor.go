package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTwoFactorCmd creates the 2fa command group
func NewTwoFactorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	cmd.AddCommand(newTwoFactorSetupCmd())
	cmd.AddCommand(newTwoFactorEnableCmd())
	cmd.AddCommand(newTwoFactorDisableCmd())

	return cmd
}

func newTwoFactorSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Provision a TOTP secret for an authenticator app",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			setup, err := newAPIClient(server).SetupTwoFactor()
			if err != nil {
				return err
			}

			fmt.Println("Add this secret to your authenticator app:")
			fmt.Printf("\n  Secret: %s\n  URL:    %s\n\n", setup.Secret, setup.URL)
			fmt.Println("Then run 'cryptopilot 2fa enable <code>' with a generated code.")
			return nil
		},
	}
}

func newTwoFactorEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <code>",
		Short: "Enable two-factor authentication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			if err := newAPIClient(server).EnableTwoFactor(args[0]); err != nil {
				return err
			}

			fmt.Println("✓ Two-factor authentication enabled")
			return nil
		},
	}
}

func newTwoFactorDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <code>",
		Short: "Disable two-factor authentication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			if err := newAPIClient(server).DisableTwoFactor(args[0]); err != nil {
				return err
			}

			fmt.Println("✓ Two-factor authentication disabled")
			return nil
		},
	}
}
