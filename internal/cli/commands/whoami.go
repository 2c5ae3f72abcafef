package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami()
		},
	}
}

func runWhoami() error {
	_, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	session, err := newAPIClient(server).Me()
	if err != nil {
		return err
	}

	fmt.Printf("Signed in to %s (%s)\n", server.Alias, server.URL)
	fmt.Printf("  User: %s (%s)\n", session.DisplayName, session.Email)
	fmt.Printf("  Username: %s\n", session.Username)
	fmt.Printf("  Role: %s\n", session.Role)
	fmt.Printf("  Email verified: %v\n", session.EmailVerified)
	fmt.Printf("  Two-factor: %v\n", session.TwoFactorEnabled)

	return nil
}
