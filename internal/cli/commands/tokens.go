package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTokensCmd creates the tokens command group
func NewTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage flash token balances",
	}

	cmd.AddCommand(newBalancesCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newConvertCmd())
	cmd.AddCommand(newTransferCmd())

	return cmd
}

func newBalancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "List token balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			balances, err := newAPIClient(server).Balances()
			if err != nil {
				return err
			}

			if len(balances) == 0 {
				fmt.Println("No balances. Run 'cryptopilot tokens generate' to mint some.")
				return nil
			}

			fmt.Printf("%-8s %s\n", "SYMBOL", "AMOUNT")
			for _, b := range balances {
				fmt.Printf("%-8s %.6f\n", b.Symbol, b.Amount)
			}
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var blockchain string

	cmd := &cobra.Command{
		Use:   "generate <symbol> <amount>",
		Short: "Generate demo tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			tx, err := newAPIClient(server).Generate(args[0], blockchain, amount)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Generated %.6f %s on %s (tx %s)\n", tx.Amount, tx.Symbol, tx.Blockchain, tx.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&blockchain, "blockchain", "ethereum", "Target blockchain (ethereum, binance, tron, solana, polygon)")

	return cmd
}

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <from-symbol> <to-symbol> <amount>",
		Short: "Convert between token symbols at the current rate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[2])
			}

			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			tx, err := newAPIClient(server).Convert(args[0], args[1], amount)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Converted %.6f %s -> %.6f %s (tx %s)\n",
				tx.Amount, tx.Symbol, tx.CounterAmount, tx.CounterSymbol, tx.ID)
			return nil
		},
	}
}

func newTransferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <symbol> <amount> <address>",
		Short: "Transfer tokens to an external address",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			_, server, err := getSelectedServer()
			if err != nil {
				return err
			}

			tx, err := newAPIClient(server).Transfer(args[0], args[2], amount)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Transferred %.6f %s to %s (fee %.6f, tx %s)\n",
				tx.Amount, tx.Symbol, tx.Address, tx.Fee, tx.ID)
			return nil
		},
	}
}
