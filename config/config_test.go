package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "crypto_data.json", cfg.Ledger.DataFile)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "https://api.coinbase.com", cfg.Oracle.SpotURL)

	timeout, err := cfg.Oracle.ParseTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)

	interval, err := cfg.Sweep.ParseInterval()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, interval)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perpsim.yaml")
	doc := `
ledger:
  data_file: /var/lib/perpsim/data.json
journal:
  enabled: false
sweep:
  interval: 5m
chat:
  url: wss://chat.example.com/ws
  bot_user: perpsim
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/perpsim/data.json", cfg.Ledger.DataFile)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "5m", cfg.Sweep.Interval)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.Chat.URL)
	// Untouched sections keep their defaults.
	assert.Equal(t, "10s", cfg.Oracle.Timeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perpsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sweep:\n  interval: 5m\n"), 0o644))

	t.Setenv("PERPSIM_SWEEP_INTERVAL", "30s")
	t.Setenv("PERPSIM_CHAT_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "30s", cfg.Sweep.Interval)
	assert.Equal(t, "secret", cfg.Chat.Token)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		corrupt func(*Config)
	}{
		{"missing data file", func(c *Config) { c.Ledger.DataFile = "" }},
		{"journal enabled without path", func(c *Config) { c.Journal.DBPath = "" }},
		{"missing oracle urls", func(c *Config) { c.Oracle.SpotURL = "" }},
		{"bad timeout", func(c *Config) { c.Oracle.Timeout = "soon" }},
		{"negative interval", func(c *Config) { c.Sweep.Interval = "-1m" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.corrupt(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
