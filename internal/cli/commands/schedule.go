package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewScheduleCmd creates the schedule command group (admin only)
func NewScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the insight refresh schedule (admin)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the current refresh schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			cfg, err := newAPIClient(server).GetConfig()
			if err != nil {
				return err
			}

			if cfg.InsightRefreshSchedule == "" {
				fmt.Println("Automatic insight refresh is disabled.")
				return nil
			}
			fmt.Printf("Schedule: %s\n", cfg.InsightRefreshSchedule)
			if cfg.LastInsightRefreshAt != nil {
				fmt.Printf("Last run: %s\n", *cfg.LastInsightRefreshAt)
			}
			if cfg.NextInsightRefreshAt != nil {
				fmt.Printf("Next run: %s\n", *cfg.NextInsightRefreshAt)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <cron-expression>",
		Short: "Set the refresh schedule (empty string disables)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			cfg, err := newAPIClient(server).SetInsightSchedule(args[0])
			if err != nil {
				return err
			}

			if cfg.InsightRefreshSchedule == "" {
				fmt.Println("✓ Automatic insight refresh disabled")
				return nil
			}
			fmt.Printf("✓ Schedule set to %q\n", cfg.InsightRefreshSchedule)
			if cfg.NextInsightRefreshAt != nil {
				fmt.Printf("Next run: %s\n", *cfg.NextInsightRefreshAt)
			}
			return nil
		},
	})

	return cmd
}
