package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptopilot-dev/cryptopilot/internal/cli/commands"
	"github.com/cryptopilot-dev/cryptopilot/internal/cli/update"
)

var version = "dev" // Will be set during build

var rootCmd = &cobra.Command{
	Use:   "cryptopilot",
	Short: "CryptoPilot - Flash token dashboard",
	Long: `CryptoPilot CLI - Manage your flash token portfolio from the terminal.

Sign in through any configured identity provider, generate and convert
demo tokens, and follow the generated market insights.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Skip update check for the update and version commands
		if cmd.Name() == "update" || cmd.Name() == "version" {
			return
		}

		// Check for updates (runs before every command except update/version)
		update.PrintUpdateNotification(version)
	},
}

func init() {
	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cryptopilot version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewInitCmd())
	rootCmd.AddCommand(commands.NewLoginCmd())
	rootCmd.AddCommand(commands.NewRegisterCmd())
	rootCmd.AddCommand(commands.NewGoogleCmd())
	rootCmd.AddCommand(commands.NewLogoutCmd())
	rootCmd.AddCommand(commands.NewWhoamiCmd())
	rootCmd.AddCommand(commands.NewTokensCmd())
	rootCmd.AddCommand(commands.NewTransactionsCmd())
	rootCmd.AddCommand(commands.NewMarketCmd())
	rootCmd.AddCommand(commands.NewInsightsCmd())
	rootCmd.AddCommand(commands.NewKeysCmd())
	rootCmd.AddCommand(commands.NewTwoFactorCmd())
	rootCmd.AddCommand(commands.NewScheduleCmd())
	rootCmd.AddCommand(commands.NewDashCmd())
	rootCmd.AddCommand(commands.NewSelectServerCmd())
	rootCmd.AddCommand(commands.NewUpdateCmd(version))
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
