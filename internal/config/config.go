// Package config handles configuration management with validation
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig                 `yaml:"app"`
	Streams     StreamsConfig             `yaml:"streams"`
	Exchanges   map[string]ExchangeConfig `yaml:"exchanges"`
	Analysis    AnalysisConfig            `yaml:"analysis"`
	Dashboard   DashboardConfig           `yaml:"dashboard"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Alerts      AlertsConfig              `yaml:"alerts"`
	Concurrency ConcurrencyConfig         `yaml:"concurrency"`
}

// AppConfig contains application-level settings and the initial selection
type AppConfig struct {
	LogLevel             string  `yaml:"log_level"`
	DefaultExchange      string  `yaml:"default_exchange"`
	DefaultCoin          string  `yaml:"default_coin"`
	DefaultExpiry        string  `yaml:"default_expiry"` // ISO YYYY-MM-DD, empty for none
	LotSize              float64 `yaml:"lot_size"`
	PriceRangePercentage float64 `yaml:"price_range_percentage"`
}

// StreamsConfig describes the two push channels
type StreamsConfig struct {
	MarketURL      string        `yaml:"market_url"`
	PayoffURL      string        `yaml:"payoff_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PingWait       time.Duration `yaml:"ping_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
}

// ExchangeConfig lists an exchange's coins and, for exchanges with a
// contract lookup, how to reach it
type ExchangeConfig struct {
	Lookup     string        `yaml:"lookup"` // "delta" or empty for catalogue-only exchanges
	BaseURL    string        `yaml:"base_url"`
	Coins      []string      `yaml:"coins"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// AnalysisConfig points at the scenario analysis HTTP API
type AnalysisConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DashboardConfig configures the local control server
type DashboardConfig struct {
	Enabled          bool     `yaml:"enabled"`
	ListenAddr       string   `yaml:"listen_addr"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	MaxConnections   int      `yaml:"max_connections"`
	UpgradeRateLimit float64  `yaml:"upgrade_rate_limit"` // socket upgrades per second per IP
	UpgradeBurst     int      `yaml:"upgrade_burst"`
	APIKeys          []Secret `yaml:"api_keys"` // empty disables authentication
	APIRateLimit     int      `yaml:"api_rate_limit"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	StdoutTraces  bool `yaml:"stdout_traces"`
	StdoutLogs    bool `yaml:"stdout_logs"`
}

// AlertsConfig configures stream outage notifications. No channel
// configured disables alerting.
type AlertsConfig struct {
	OutageThreshold  time.Duration `yaml:"outage_threshold"`
	SlackWebhookURL  Secret        `yaml:"slack_webhook_url"`
	TelegramBotToken Secret        `yaml:"telegram_bot_token"`
	TelegramChatID   string        `yaml:"telegram_chat_id"`
}

// Enabled reports whether at least one channel is configured
func (a AlertsConfig) Enabled() bool {
	return a.SlackWebhookURL != "" || (a.TelegramBotToken != "" && a.TelegramChatID != "")
}

// ConcurrencyConfig contains worker pool and event loop settings
type ConcurrencyConfig struct {
	LookupPoolSize   int           `yaml:"lookup_pool_size"`
	LookupPoolBuffer int           `yaml:"lookup_pool_buffer"`
	LookupTimeout    time.Duration `yaml:"lookup_timeout"`
	EventQueueSize   int           `yaml:"event_queue_size"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion. Fields absent from the file keep their DefaultConfig values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	for _, check := range []func() error{
		c.validateAppConfig,
		c.validateStreams,
		c.validateExchanges,
		c.validateDashboard,
		c.validateAlerts,
		c.validateConcurrency,
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}

	if c.App.DefaultExchange != "" {
		ex, ok := c.Exchanges[c.App.DefaultExchange]
		if !ok {
			return ValidationError{
				Field:   "app.default_exchange",
				Value:   c.App.DefaultExchange,
				Message: "exchange configuration not found in exchanges section",
			}
		}
		if c.App.DefaultCoin != "" && !contains(ex.Coins, c.App.DefaultCoin) {
			return ValidationError{
				Field:   "app.default_coin",
				Value:   c.App.DefaultCoin,
				Message: fmt.Sprintf("not listed for %s", c.App.DefaultExchange),
			}
		}
	}

	if c.App.DefaultExpiry != "" {
		if _, err := time.Parse("2006-01-02", c.App.DefaultExpiry); err != nil {
			return ValidationError{
				Field:   "app.default_expiry",
				Value:   c.App.DefaultExpiry,
				Message: "must be an ISO date (YYYY-MM-DD)",
			}
		}
	}

	if c.App.LotSize < 0 {
		return ValidationError{Field: "app.lot_size", Value: c.App.LotSize, Message: "must not be negative"}
	}
	if c.App.PriceRangePercentage < 0 || c.App.PriceRangePercentage > 100 {
		return ValidationError{
			Field:   "app.price_range_percentage",
			Value:   c.App.PriceRangePercentage,
			Message: "must be between 0 and 100",
		}
	}
	return nil
}

func (c *Config) validateStreams() error {
	for field, raw := range map[string]string{
		"streams.market_url": c.Streams.MarketURL,
		"streams.payoff_url": c.Streams.PayoffURL,
	} {
		if err := validateWebsocketURL(raw); err != nil {
			return ValidationError{Field: field, Value: raw, Message: err.Error()}
		}
	}
	if c.Streams.ReconnectDelay <= 0 {
		return ValidationError{
			Field:   "streams.reconnect_delay",
			Value:   c.Streams.ReconnectDelay,
			Message: "must be positive",
		}
	}
	if c.Streams.PingInterval > 0 && c.Streams.PongWait <= c.Streams.PingInterval {
		return ValidationError{
			Field:   "streams.pong_wait",
			Value:   c.Streams.PongWait,
			Message: "must be longer than ping_interval",
		}
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.OutageThreshold < 0 {
		return ValidationError{
			Field:   "alerts.outage_threshold",
			Value:   c.Alerts.OutageThreshold,
			Message: "must not be negative",
		}
	}
	if (c.Alerts.TelegramBotToken == "") != (c.Alerts.TelegramChatID == "") {
		return ValidationError{
			Field:   "alerts.telegram_chat_id",
			Value:   c.Alerts.TelegramChatID,
			Message: "telegram_bot_token and telegram_chat_id must be set together",
		}
	}
	return nil
}

func validateWebsocketURL(raw string) error {
	if raw == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func (c *Config) validateExchanges() error {
	if len(c.Exchanges) == 0 {
		return ValidationError{
			Field:   "exchanges",
			Message: "at least one exchange must be configured",
		}
	}

	for name, exchange := range c.Exchanges {
		if len(exchange.Coins) == 0 {
			return ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.coins", name),
				Message: "at least one coin is required",
			}
		}
		switch exchange.Lookup {
		case "":
		case "delta":
			if exchange.BaseURL != "" {
				if u, err := url.Parse(exchange.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
					return ValidationError{
						Field:   fmt.Sprintf("exchanges.%s.base_url", name),
						Value:   exchange.BaseURL,
						Message: "must be an http or https URL",
					}
				}
			}
		default:
			return ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.lookup", name),
				Value:   exchange.Lookup,
				Message: "must be empty or delta",
			}
		}
	}

	return nil
}

func (c *Config) validateDashboard() error {
	if !c.Dashboard.Enabled {
		return nil
	}
	if c.Dashboard.ListenAddr == "" {
		return ValidationError{Field: "dashboard.listen_addr", Message: "listen address is required"}
	}
	if c.Dashboard.MaxConnections < 0 {
		return ValidationError{
			Field:   "dashboard.max_connections",
			Value:   c.Dashboard.MaxConnections,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateConcurrency() error {
	if c.Concurrency.LookupPoolSize < 1 || c.Concurrency.LookupPoolSize > 100 {
		return ValidationError{
			Field:   "concurrency.lookup_pool_size",
			Value:   c.Concurrency.LookupPoolSize,
			Message: "must be between 1 and 100",
		}
	}
	return nil
}

// Catalogue returns exchange name → coins
func (c *Config) Catalogue() map[string][]string {
	out := make(map[string][]string, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		out[name] = append([]string(nil), ex.Coins...)
	}
	return out
}

// ExchangeNames returns the configured exchange names, sorted
func (c *Config) ExchangeNames() []string {
	names := make([]string, 0, len(c.Exchanges))
	for name := range c.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a YAML representation with secrets redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the configuration used when a field is not set
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:             "INFO",
			DefaultExchange:      "Delta Exchange",
			DefaultCoin:          "BTCUSD",
			LotSize:              0.0001,
			PriceRangePercentage: 10,
		},
		Streams: StreamsConfig{
			MarketURL:      "wss://socket.india.delta.exchange",
			PayoffURL:      "ws://localhost:8001/stream/trading",
			ReconnectDelay: 5 * time.Second,
			PingInterval:   30 * time.Second,
			PingWait:       10 * time.Second,
			PongWait:       60 * time.Second,
		},
		Exchanges: map[string]ExchangeConfig{
			"Binance": {
				Coins: []string{"SOLUSDT", "BTCUSDT", "ETHUSDT", "BNBUSDT", "XRPUSDT", "DOGEUSDT"},
			},
			"Delta Exchange": {
				Lookup:     "delta",
				BaseURL:    "https://api.india.delta.exchange",
				Coins:      []string{"BTCUSD", "ETHUSD"},
				Timeout:    10 * time.Second,
				MaxRetries: 3,
			},
		},
		Analysis: AnalysisConfig{
			BaseURL: "http://localhost:8001",
			Timeout: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled:          true,
			ListenAddr:       "127.0.0.1:8090",
			AllowedOrigins:   []string{"http://localhost:4200"},
			MaxConnections:   100,
			UpgradeRateLimit: 5,
			UpgradeBurst:     10,
			APIRateLimit:     50,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: true,
		},
		Alerts: AlertsConfig{
			OutageThreshold: 30 * time.Second,
		},
		Concurrency: ConcurrencyConfig{
			LookupPoolSize:   4,
			LookupPoolBuffer: 64,
			LookupTimeout:    10 * time.Second,
			EventQueueSize:   1024,
		},
	}
}
