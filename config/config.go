// Package config loads the simulator configuration: a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v7"
	"gopkg.in/yaml.v3"
)

// Config is the complete simulator configuration.
type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Journal JournalConfig `yaml:"journal"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

// LedgerConfig locates the persisted account document.
type LedgerConfig struct {
	DataFile string `yaml:"data_file" env:"PERPSIM_DATA_FILE"`
}

// JournalConfig controls the sqlite trade journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" env:"PERPSIM_JOURNAL_ENABLED"`
	DBPath  string `yaml:"db_path" env:"PERPSIM_JOURNAL_DB"`
}

// OracleConfig points at the price feed endpoints. Timeout is a
// time.ParseDuration string, e.g. "10s".
type OracleConfig struct {
	SpotURL    string `yaml:"spot_url" env:"PERPSIM_ORACLE_SPOT_URL"`
	CandlesURL string `yaml:"candles_url" env:"PERPSIM_ORACLE_CANDLES_URL"`
	Timeout    string `yaml:"timeout" env:"PERPSIM_ORACLE_TIMEOUT"`
}

// ParseTimeout converts the timeout string to a time.Duration.
func (o OracleConfig) ParseTimeout() (time.Duration, error) {
	return time.ParseDuration(o.Timeout)
}

// SweepConfig controls the background settlement loop. Interval is a
// time.ParseDuration string, e.g. "10m".
type SweepConfig struct {
	Interval string `yaml:"interval" env:"PERPSIM_SWEEP_INTERVAL"`
}

// ParseInterval converts the interval string to a time.Duration.
func (s SweepConfig) ParseInterval() (time.Duration, error) {
	return time.ParseDuration(s.Interval)
}

// ChatConfig configures the websocket chat gateway.
type ChatConfig struct {
	URL             string `yaml:"url" env:"PERPSIM_CHAT_URL"`
	Token           string `yaml:"token" env:"PERPSIM_CHAT_TOKEN"`
	BotUser         string `yaml:"bot_user" env:"PERPSIM_CHAT_BOT_USER"`
	AdminUser       string `yaml:"admin_user" env:"PERPSIM_CHAT_ADMIN_USER"`
	AnnounceChannel string `yaml:"announce_channel" env:"PERPSIM_CHAT_ANNOUNCE_CHANNEL"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level string `yaml:"level" env:"PERPSIM_LOG_LEVEL"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Ledger:  LedgerConfig{DataFile: "crypto_data.json"},
		Journal: JournalConfig{Enabled: true, DBPath: "perpsim.db"},
		Oracle: OracleConfig{
			SpotURL:    "https://api.coinbase.com",
			CandlesURL: "https://api.exchange.coinbase.com",
			Timeout:    "10s",
		},
		Sweep:   SweepConfig{Interval: "10m"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, and validates. Env vars win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Ledger.DataFile == "" {
		return fmt.Errorf("ledger.data_file is required")
	}
	if c.Journal.Enabled && c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path required when journal is enabled")
	}
	if c.Oracle.SpotURL == "" || c.Oracle.CandlesURL == "" {
		return fmt.Errorf("oracle.spot_url and oracle.candles_url are required")
	}
	if d, err := c.Oracle.ParseTimeout(); err != nil || d <= 0 {
		return fmt.Errorf("oracle.timeout must be a positive duration")
	}
	if d, err := c.Sweep.ParseInterval(); err != nil || d <= 0 {
		return fmt.Errorf("sweep.interval must be a positive duration")
	}
	return nil
}
