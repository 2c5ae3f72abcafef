package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out everywhere",
		Long: `Sign out of the server and every configured identity provider.

Sign-out is best-effort: unreachable providers are skipped and the local
session is cleared regardless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout()
		},
	}
}

func runLogout() error {
	cfg, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	rec, _, _ := buildReconciler(cfg, server)

	// Logout never fails; partial provider failures are logged only
	_ = rec.Logout(context.Background())

	fmt.Println("✓ Signed out")
	return nil
}
