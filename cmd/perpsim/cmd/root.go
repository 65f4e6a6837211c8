package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"perpsim/coinbase"
	"perpsim/config"
	"perpsim/engine"
	"perpsim/journal"
	"perpsim/ledger"
)

var rootCmd = &cobra.Command{
	Use:   "perpsim",
	Short: "A chat-driven leveraged crypto futures simulator",
	Long: `Perpsim simulates leveraged futures trading inside a chat channel.

Users open and close simulated long/short positions against live Coinbase
spot prices, with margin escrow, liquidation, take-profit/stop-loss and
limit orders. Balances and positions persist in a single JSON ledger;
settled trades are journaled to SQLite.

No real money is involved.`,
}

var cfgPath string

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		// Secrets come from a .env file when present.
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "path to config file (YAML)")
}

// app is everything a subcommand needs wired together.
type app struct {
	cfg     *config.Config
	store   *ledger.Store
	oracle  *coinbase.Client
	journal journal.Journal
	engine  *engine.Engine
	log     *logrus.Entry
}

func buildApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	log := logrus.WithField("app", "perpsim")

	store, err := ledger.Load(cfg.Ledger.DataFile)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	timeout, err := cfg.Oracle.ParseTimeout()
	if err != nil {
		return nil, fmt.Errorf("oracle timeout: %w", err)
	}
	oracle := coinbase.NewClient(
		coinbase.WithBaseURLs(cfg.Oracle.SpotURL, cfg.Oracle.CandlesURL),
		coinbase.WithTimeout(timeout),
	)

	var j journal.Journal = journal.Nop{}
	if cfg.Journal.Enabled {
		j, err = journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	return &app{
		cfg:     cfg,
		store:   store,
		oracle:  oracle,
		journal: j,
		engine:  engine.New(store, oracle, j, log),
		log:     log,
	}, nil
}

func (a *app) close() {
	if err := a.journal.Close(); err != nil {
		a.log.WithError(err).Warn("close journal failed")
	}
}
