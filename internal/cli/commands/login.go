package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
)

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a CryptoPilot server",
		Long: `Sign in to a CryptoPilot server.

Providers are tried in priority order (Firebase, Supabase, then the
server's own credential store); the first one that authenticates and
syncs wins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(username, password)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username or email (or set CRYPTOPILOT_USERNAME)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set CRYPTOPILOT_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(username, password string) error {
	// Check for environment variables (useful for CI/CD)
	if username == "" {
		username = os.Getenv("CRYPTOPILOT_USERNAME")
	}
	if password == "" {
		password = os.Getenv("CRYPTOPILOT_PASSWORD")
	}

	if username == "" {
		return fmt.Errorf("username is required (use --username flag or CRYPTOPILOT_USERNAME env var)")
	}

	cfg, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	// Prompt for password if not provided via flag or env var
	if password == "" {
		password, err = readPassword("Password: ")
		if err != nil {
			return err
		}
	}

	rec, _, _ := buildReconciler(cfg, server)

	fmt.Printf("Signing in to %s (%s)...\n", server.Alias, server.URL)

	session, err := rec.Login(context.Background(), idp.Credentials{
		Identifier: username,
		Secret:     password,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Println("✓ Login successful!")
	printSession(session)

	return nil
}
