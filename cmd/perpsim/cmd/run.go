package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"perpsim/chat"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chat bot and background sweeper",
	Long: `Run connects to the chat server, handles trading commands, and runs
the background settlement sweep on a fixed interval.

Example:
  perpsim run -f perpsim.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Chat.URL == "" {
		return fmt.Errorf("chat.url is required for run")
	}

	interval, err := a.cfg.Sweep.ParseInterval()
	if err != nil {
		return fmt.Errorf("sweep interval: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := chat.NewProcessor(a.engine, a.oracle, a.cfg.Chat.AdminUser, a.log)
	gateway := chat.NewGateway(chat.GatewayConfig{
		URL:             a.cfg.Chat.URL,
		Token:           a.cfg.Chat.Token,
		BotUser:         a.cfg.Chat.BotUser,
		AnnounceChannel: a.cfg.Chat.AnnounceChannel,
	}, processor, a.log)

	go a.sweepLoop(ctx, gateway, interval)

	a.log.WithField("interval", interval).Info("perpsim running")
	err = gateway.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweepLoop runs the settlement sweep on the configured interval and
// announces any fills or closes.
func (a *app) sweepLoop(ctx context.Context, gateway *chat.Gateway, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fills, closes, err := a.engine.Sweep(ctx)
			if err != nil {
				a.log.WithError(err).Warn("background sweep failed")
			}
			gateway.Announce(fills)
			gateway.Announce(closes)
		}
	}
}
