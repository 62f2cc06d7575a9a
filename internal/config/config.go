// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xapi/internal/core"
	"xapi/pkg/logging"
)

// Config represents the complete configuration structure
type Config struct {
	XAPI      XAPIConfig      `yaml:"xapi"`
	Timing    TimingConfig    `yaml:"timing"`
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// XAPIConfig contains the server and account settings
type XAPIConfig struct {
	Host        string `yaml:"host"`
	AccountType string `yaml:"account_type"` // demo or real
	AccountID   string `yaml:"account_id"`
	Password    Secret `yaml:"password"`
	SafeMode    *bool  `yaml:"safe_mode"` // nil means enabled
}

// IsSafeMode reports whether trade transactions are blocked locally
func (x XAPIConfig) IsSafeMode() bool {
	return x.SafeMode == nil || *x.SafeMode
}

// TimingConfig contains pacing and timeout settings
type TimingConfig struct {
	RequestIntervalMs int `yaml:"request_interval_ms"`
	RequestTimeoutMs  int `yaml:"request_timeout_ms"`
	ConnectTimeoutMs  int `yaml:"connect_timeout_ms"`
	WriteTimeoutMs    int `yaml:"write_timeout_ms"`
	CloseTimeoutMs    int `yaml:"close_timeout_ms"`
	PingIntervalSec   int `yaml:"ping_interval_s"` // 0 disables keep-alive pings
	ConnectRetries    int `yaml:"connect_retries"` // handshake retries in Client.Connect, 0 disables
	ConnectBackoffMs  int `yaml:"connect_backoff_ms"`
}

func (t TimingConfig) RequestInterval() time.Duration {
	return time.Duration(t.RequestIntervalMs) * time.Millisecond
}

func (t TimingConfig) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutMs) * time.Millisecond
}

func (t TimingConfig) ConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeoutMs) * time.Millisecond
}

func (t TimingConfig) WriteTimeout() time.Duration {
	return time.Duration(t.WriteTimeoutMs) * time.Millisecond
}

func (t TimingConfig) CloseTimeout() time.Duration {
	return time.Duration(t.CloseTimeoutMs) * time.Millisecond
}

func (t TimingConfig) PingInterval() time.Duration {
	return time.Duration(t.PingIntervalSec) * time.Second
}

func (t TimingConfig) ConnectBackoff() time.Duration {
	return time.Duration(t.ConnectBackoffMs) * time.Millisecond
}

// SystemConfig contains system-level settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	MetricsPort int    `yaml:"metrics_port"` // 0 disables the metrics server
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

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates
func Parse(data []byte) (*Config, error) {
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
	var errors []string

	for _, err := range c.validateXAPIConfig() {
		errors = append(errors, err.Error())
	}

	for _, err := range c.validateTimingConfig() {
		errors = append(errors, err.Error())
	}

	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateTelemetryConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateXAPIConfig() []error {
	var errs []error
	if c.XAPI.Host == "" {
		errs = append(errs, ValidationError{Field: "xapi.host", Value: c.XAPI.Host, Message: "host is required"})
	}
	if _, err := core.ParseAccountType(c.XAPI.AccountType); err != nil {
		errs = append(errs, ValidationError{Field: "xapi.account_type", Value: c.XAPI.AccountType, Message: "must be demo or real"})
	}
	return errs
}

func (c *Config) validateTimingConfig() []error {
	var errs []error
	if c.Timing.RequestIntervalMs < 0 {
		errs = append(errs, ValidationError{Field: "timing.request_interval_ms", Value: c.Timing.RequestIntervalMs, Message: "must not be negative"})
	}
	if c.Timing.RequestTimeoutMs <= 0 {
		errs = append(errs, ValidationError{Field: "timing.request_timeout_ms", Value: c.Timing.RequestTimeoutMs, Message: "must be positive"})
	}
	if c.Timing.ConnectTimeoutMs <= 0 {
		errs = append(errs, ValidationError{Field: "timing.connect_timeout_ms", Value: c.Timing.ConnectTimeoutMs, Message: "must be positive"})
	}
	if c.Timing.WriteTimeoutMs <= 0 {
		errs = append(errs, ValidationError{Field: "timing.write_timeout_ms", Value: c.Timing.WriteTimeoutMs, Message: "must be positive"})
	}
	if c.Timing.CloseTimeoutMs <= 0 {
		errs = append(errs, ValidationError{Field: "timing.close_timeout_ms", Value: c.Timing.CloseTimeoutMs, Message: "must be positive"})
	}
	if c.Timing.PingIntervalSec < 0 {
		errs = append(errs, ValidationError{Field: "timing.ping_interval_s", Value: c.Timing.PingIntervalSec, Message: "must not be negative"})
	}
	if c.Timing.ConnectRetries < 0 {
		errs = append(errs, ValidationError{Field: "timing.connect_retries", Value: c.Timing.ConnectRetries, Message: "must not be negative"})
	}
	if c.Timing.ConnectRetries > 0 && c.Timing.ConnectBackoffMs <= 0 {
		errs = append(errs, ValidationError{Field: "timing.connect_backoff_ms", Value: c.Timing.ConnectBackoffMs, Message: "must be positive when retries are enabled"})
	}
	return errs
}

func (c *Config) validateSystemConfig() error {
	if _, err := logging.ParseLevel(c.System.LogLevel); err != nil {
		return ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: "must be one of DEBUG, INFO, WARN, ERROR, FATAL"}
	}
	return nil
}

func (c *Config) validateTelemetryConfig() error {
	if c.Telemetry.MetricsPort < 0 || c.Telemetry.MetricsPort > 65535 {
		return ValidationError{Field: "telemetry.metrics_port", Value: c.Telemetry.MetricsPort, Message: "must be a valid port"}
	}
	return nil
}

// String returns a string representation of the configuration with the password redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

// DefaultConfig returns the configuration used for any field the file leaves out
func DefaultConfig() *Config {
	return &Config{
		XAPI: XAPIConfig{
			Host:        "ws.xtb.com",
			AccountType: string(core.AccountDemo),
		},
		Timing: TimingConfig{
			RequestIntervalMs: 200,
			RequestTimeoutMs:  5000,
			ConnectTimeoutMs:  10000,
			WriteTimeoutMs:    5000,
			CloseTimeoutMs:    1000,
			PingIntervalSec:   0,
			ConnectRetries:    0,
			ConnectBackoffMs:  500,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "xapi",
		},
	}
}
