package bootstrap

import (
	"fmt"
	"net"

	"hedgedesk/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig loads .env files, delegates to the project's config loader and
// runs pre-flight checks
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	if !cfg.Dashboard.Enabled {
		return nil
	}

	host, _, err := net.SplitHostPort(cfg.Dashboard.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid dashboard listen_addr %q: %w", cfg.Dashboard.ListenAddr, err)
	}

	// The control API mutates positions; refuse to expose it off-host without keys.
	if !isLoopback(host) && len(cfg.Dashboard.APIKeys) == 0 {
		return fmt.Errorf("dashboard listens on %s but no api_keys are configured", cfg.Dashboard.ListenAddr)
	}
	for i, key := range cfg.Dashboard.APIKeys {
		if key.Value() == "" {
			return fmt.Errorf("dashboard.api_keys[%d] is empty", i)
		}
	}

	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
