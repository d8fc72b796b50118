package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:     "simple env var",
			input:    "market_url: ${MARKET_URL}",
			envVars:  map[string]string{"MARKET_URL": "wss://example.test"},
			expected: "market_url: wss://example.test",
		},
		{
			name:     "env var without braces",
			input:    "api_key: $API_KEY",
			envVars:  map[string]string{"API_KEY": "test_key_123"},
			expected: "api_key: test_key_123",
		},
		{
			name:     "multiple env vars",
			input:    "market: ${MARKET}\npayoff: ${PAYOFF}",
			envVars:  map[string]string{"MARKET": "wss://a", "PAYOFF": "ws://b"},
			expected: "market: wss://a\npayoff: ws://b",
		},
		{
			name:     "missing env var",
			input:    "key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	t.Setenv("HEDGEDESK_MARKET_URL", "wss://market.example.test/ws")
	t.Setenv("HEDGEDESK_API_KEY", "secret-key")

	path := writeConfig(t, `
app:
  log_level: DEBUG
  default_exchange: "Delta Exchange"
  default_coin: ETHUSD
  default_expiry: "2025-02-22"
streams:
  market_url: ${HEDGEDESK_MARKET_URL}
  payoff_url: ws://localhost:8001/stream/trading
  reconnect_delay: 2s
dashboard:
  enabled: true
  listen_addr: 127.0.0.1:9000
  api_keys: ["${HEDGEDESK_API_KEY}"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.App.LogLevel)
	assert.Equal(t, "ETHUSD", cfg.App.DefaultCoin)
	assert.Equal(t, "2025-02-22", cfg.App.DefaultExpiry)
	assert.Equal(t, "wss://market.example.test/ws", cfg.Streams.MarketURL)
	assert.Equal(t, 2*time.Second, cfg.Streams.ReconnectDelay)
	// untouched fields keep defaults
	assert.Equal(t, 30*time.Second, cfg.Streams.PingInterval)
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, cfg.Exchanges["Delta Exchange"].Coins)
	require.Len(t, cfg.Dashboard.APIKeys, 1)
	assert.Equal(t, "secret-key", cfg.Dashboard.APIKeys[0].Value())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log level", func(c *Config) { c.App.LogLevel = "LOUD" }, "app.log_level"},
		{"unknown default exchange", func(c *Config) { c.App.DefaultExchange = "Kraken" }, "app.default_exchange"},
		{"coin not listed", func(c *Config) { c.App.DefaultCoin = "SOLUSDT" }, "app.default_coin"},
		{"bad expiry", func(c *Config) { c.App.DefaultExpiry = "22-02-2025" }, "app.default_expiry"},
		{"price range too wide", func(c *Config) { c.App.PriceRangePercentage = 150 }, "app.price_range_percentage"},
		{"http market url", func(c *Config) { c.Streams.MarketURL = "https://example.test" }, "streams.market_url"},
		{"empty payoff url", func(c *Config) { c.Streams.PayoffURL = "" }, "streams.payoff_url"},
		{"zero reconnect delay", func(c *Config) { c.Streams.ReconnectDelay = 0 }, "streams.reconnect_delay"},
		{"pong shorter than ping", func(c *Config) { c.Streams.PongWait = time.Second }, "streams.pong_wait"},
		{"unknown lookup", func(c *Config) {
			ex := c.Exchanges["Binance"]
			ex.Lookup = "binance"
			c.Exchanges["Binance"] = ex
		}, "exchanges.Binance.lookup"},
		{"exchange without coins", func(c *Config) {
			c.Exchanges["Empty"] = ExchangeConfig{}
		}, "exchanges.Empty.coins"},
		{"dashboard without address", func(c *Config) { c.Dashboard.ListenAddr = "" }, "dashboard.listen_addr"},
		{"negative outage threshold", func(c *Config) { c.Alerts.OutageThreshold = -time.Second }, "alerts.outage_threshold"},
		{"telegram token without chat", func(c *Config) { c.Alerts.TelegramBotToken = "token" }, "alerts.telegram_chat_id"},
		{"pool size", func(c *Config) { c.Concurrency.LookupPoolSize = 0 }, "concurrency.lookup_pool_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestAlertsConfig_Enabled(t *testing.T) {
	assert.False(t, AlertsConfig{}.Enabled())
	assert.True(t, AlertsConfig{SlackWebhookURL: "https://hooks.example.test/x"}.Enabled())
	assert.False(t, AlertsConfig{TelegramBotToken: "token"}.Enabled())
	assert.True(t, AlertsConfig{TelegramBotToken: "token", TelegramChatID: "42"}.Enabled())
}

func TestConfig_Catalogue(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"Binance", "Delta Exchange"}, cfg.ExchangeNames())

	cat := cfg.Catalogue()
	assert.Len(t, cat["Binance"], 6)
	cat["Binance"][0] = "changed"
	assert.Equal(t, "SOLUSDT", cfg.Exchanges["Binance"].Coins[0])
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dashboard.APIKeys = []Secret{"super-secret-key"}

	s := cfg.String()
	assert.NotContains(t, s, "super-secret-key")
	assert.Contains(t, s, "[REDACTED]")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("HEDGEDESK_DOTENV_A=from-file\nHEDGEDESK_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("HEDGEDESK_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("HEDGEDESK_DOTENV_A") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("HEDGEDESK_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("HEDGEDESK_DOTENV_B"))
}
