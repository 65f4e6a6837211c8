package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"perpsim/market"
)

var priceCmd = &cobra.Command{
	Use:   "price SYMBOL",
	Short: "Print the current spot price for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrice,
}

func init() {
	rootCmd.AddCommand(priceCmd)
}

func runPrice(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	symbol := market.Normalize(args[0])
	spot, err := a.oracle.Spot(cmd.Context(), symbol)
	if err != nil {
		return fmt.Errorf("fetch price for %s: %w", symbol, err)
	}

	fmt.Printf("%s/USD: $%.2f\n", symbol, spot)
	return nil
}
