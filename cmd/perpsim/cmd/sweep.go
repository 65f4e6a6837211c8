package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one settlement pass and print the events",
	Long: `Sweep runs a single settlement pass over every account: limit order
fills, take-profit/stop-loss triggers and liquidations. Events are
printed instead of announced to chat.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	fills, closes, err := a.engine.Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if len(fills) == 0 && len(closes) == 0 {
		fmt.Println("Nothing settled.")
		return nil
	}
	for _, ev := range fills {
		fmt.Println(ev)
	}
	for _, ev := range closes {
		fmt.Println(ev)
	}
	return nil
}
