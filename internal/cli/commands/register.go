package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
)

// NewRegisterCmd creates the register command
func NewRegisterCmd() *cobra.Command {
	var email, password, displayName string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a CryptoPilot account",
		Long: `Create a CryptoPilot account.

The account is created with every configured identity provider so later
sign-ins can fall back between them; if no provider accepts it, the
account is created directly on the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(email, password, displayName)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set CRYPTOPILOT_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (will prompt if not provided)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name (defaults to the email)")

	return cmd
}

func runRegister(email, password, displayName string) error {
	if email == "" {
		email = os.Getenv("CRYPTOPILOT_EMAIL")
	}
	if email == "" {
		return fmt.Errorf("email is required (use --email flag or CRYPTOPILOT_EMAIL env var)")
	}

	cfg, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	if password == "" {
		password, err = readPassword("Password: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	rec, _, _ := buildReconciler(cfg, server)

	fmt.Printf("Creating account on %s (%s)...\n", server.Alias, server.URL)

	session, err := rec.Register(context.Background(), idp.Credentials{
		Identifier: email,
		Secret:     password,
	}, idp.Profile{DisplayName: displayName})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Println("✓ Account created!")
	printSession(session)
	fmt.Println("\nCheck your inbox for the verification email.")

	return nil
}
