package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTransactionsCmd creates the transactions command
func NewTransactionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List recent token transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransactions(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of transactions to show")

	return cmd
}

func runTransactions(limit int) error {
	_, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	txs, err := newAPIClient(server).Transactions(limit)
	if err != nil {
		return err
	}

	if len(txs) == 0 {
		fmt.Println("No transactions yet.")
		return nil
	}

	fmt.Printf("%-10s %-8s %-14s %s\n", "TYPE", "SYMBOL", "AMOUNT", "DETAIL")
	for _, tx := range txs {
		detail := ""
		switch tx.Type {
		case "convert":
			detail = fmt.Sprintf("-> %.6f %s", tx.CounterAmount, tx.CounterSymbol)
		case "transfer":
			detail = fmt.Sprintf("to %s (fee %.6f)", tx.Address, tx.Fee)
		case "generate":
			detail = "on " + tx.Blockchain
		}
		fmt.Printf("%-10s %-8s %-14.6f %s\n", tx.Type, tx.Symbol, tx.Amount, detail)
	}
	return nil
}
