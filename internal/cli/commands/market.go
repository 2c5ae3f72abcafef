package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMarketCmd creates the market command
func NewMarketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show the tracked market overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMarket()
		},
	}
}

func runMarket() error {
	_, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	entries, err := newAPIClient(server).Market()
	if err != nil {
		return err
	}

	fmt.Printf("%-4s %-10s %-8s %-14s %s\n", "#", "NAME", "SYMBOL", "PRICE (USD)", "24H")
	for _, e := range entries {
		marker := ""
		if e.Default {
			marker = " *"
		}
		fmt.Printf("%-4d %-10s %-8s %-14.4f %+.2f%%%s\n", e.Rank, e.Name, e.Symbol, e.PriceUSD, e.Change24h, marker)
	}
	return nil
}

// NewInsightsCmd creates the insights command
func NewInsightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights",
		Short: "Show the latest market insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsights()
		},
	}
}

func runInsights() error {
	_, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	insights, err := newAPIClient(server).Insights()
	if err != nil {
		return err
	}

	if len(insights) == 0 {
		fmt.Println("No insights generated yet. The worker refreshes them on the configured schedule.")
		return nil
	}

	for _, ins := range insights {
		fmt.Printf("%-8s %-8s (%.0f%% confidence)\n", ins.Symbol, ins.Sentiment, ins.Confidence*100)
		fmt.Printf("         %s\n", ins.Summary)
	}
	return nil
}
