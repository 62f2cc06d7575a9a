// Package bootstrap loads configuration and initializes the logging and telemetry stack
package bootstrap

import (
	"fmt"

	"xapi/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader and runs pre-flight checks
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := CheckPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// CheckPreFlight performs checks beyond schema validation
func CheckPreFlight(cfg *Config) error {
	if cfg.XAPI.AccountID == "" {
		return fmt.Errorf("xapi.account_id is required to log in")
	}
	if cfg.XAPI.Password == "" {
		return fmt.Errorf("xapi.password is required to log in")
	}
	if !cfg.XAPI.IsSafeMode() && cfg.XAPI.AccountType == "real" && cfg.System.LogLevel == "DEBUG" {
		return fmt.Errorf("refusing DEBUG logging with live trading enabled on a real account")
	}
	return nil
}
