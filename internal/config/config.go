// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, listeners, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Submit bounds the submit stage.
type Submit struct {
	MaxAttempts      int `yaml:"max_attempts"`
	RetryDelayMs     int `yaml:"retry_delay_ms"`
	MaxRetryDelayMs  int `yaml:"max_retry_delay_ms"`
	ConfirmTimeoutMs int `yaml:"confirm_timeout_ms"`
	PollIntervalMs   int `yaml:"poll_interval_ms"`
}

// Simulate configures the flat-ratio quote used when no quoter is wired.
type Simulate struct {
	FallbackNumerator   uint64 `yaml:"fallback_numerator"`
	FallbackDenominator uint64 `yaml:"fallback_denominator"`
	// UseJupiter routes simulation through the Jupiter quote API.
	UseJupiter bool `yaml:"use_jupiter"`
}

// Risk encodes guard-rails for how much size a single intent may take on.
type Risk struct {
	MaxAmountIn    uint64 `yaml:"max_amount_in"`
	MaxSlippageBps uint16 `yaml:"max_slippage_bps"`
}

// Journal configures where submission reports are persisted.
type Journal struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Dex      Dex      `yaml:"dex"`
	Submit   Submit   `yaml:"submit"`
	Simulate Simulate `yaml:"simulate"`
	Wallet   Wallet   `yaml:"wallet"`
	Risk     Risk     `yaml:"risk"`
	Journal  Journal  `yaml:"journal"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the service defaults.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "solexec"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.APIAddr == "" {
		c.App.APIAddr = ":8080"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Dex.Commitment == "" {
		c.Dex.Commitment = "confirmed"
	}
	if c.Dex.JupiterBase == "" {
		c.Dex.JupiterBase = "https://quote-api.jup.ag"
	}
	if c.Dex.Adapter == "" {
		c.Dex.Adapter = "noop"
	}
	if c.Dex.QuoteTimeoutMs == 0 {
		c.Dex.QuoteTimeoutMs = 8000
	}
	if c.Submit.MaxAttempts == 0 {
		c.Submit.MaxAttempts = 3
	}
	if c.Submit.RetryDelayMs == 0 {
		c.Submit.RetryDelayMs = 250
	}
	if c.Submit.MaxRetryDelayMs == 0 {
		c.Submit.MaxRetryDelayMs = 2000
	}
	if c.Submit.ConfirmTimeoutMs == 0 {
		c.Submit.ConfirmTimeoutMs = 60_000
	}
	if c.Submit.PollIntervalMs == 0 {
		c.Submit.PollIntervalMs = 500
	}
	if c.Simulate.FallbackNumerator == 0 && c.Simulate.FallbackDenominator == 0 {
		c.Simulate.FallbackNumerator, c.Simulate.FallbackDenominator = 95, 100
	}
	if c.Wallet.EnvWalletID == "" {
		c.Wallet.EnvWalletID = "default"
	}
	if c.Wallet.RefreshIntervalMs == 0 {
		c.Wallet.RefreshIntervalMs = 30_000
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Dex.RPCEndpoints) == 0 {
		errs = append(errs, errors.New("dex.rpc_endpoints: at least one endpoint required"))
	}
	if len(c.Dex.WSEndpoints) > len(c.Dex.RPCEndpoints) {
		errs = append(errs, fmt.Errorf("dex.ws_endpoints: %d entries for %d rpc endpoints", len(c.Dex.WSEndpoints), len(c.Dex.RPCEndpoints)))
	}
	switch c.Dex.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("dex.commitment: unknown level %q", c.Dex.Commitment))
	}
	if c.Dex.Adapter != "noop" && c.Dex.Adapter != "jupiter" {
		errs = append(errs, fmt.Errorf("dex.adapter: unknown adapter %q", c.Dex.Adapter))
	}
	if c.Submit.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("submit.max_attempts: must be >= 1, got %d", c.Submit.MaxAttempts))
	}
	if c.Submit.RetryDelayMs < 0 || c.Submit.MaxRetryDelayMs < c.Submit.RetryDelayMs {
		errs = append(errs, errors.New("submit: retry delays must satisfy 0 <= retry_delay_ms <= max_retry_delay_ms"))
	}
	if c.Submit.ConfirmTimeoutMs <= 0 {
		errs = append(errs, errors.New("submit.confirm_timeout_ms: must be positive"))
	}
	if n, d := c.Simulate.FallbackNumerator, c.Simulate.FallbackDenominator; d == 0 || n == 0 || n > d {
		errs = append(errs, fmt.Errorf("simulate: fallback ratio %d/%d must satisfy 0 < numerator <= denominator", n, d))
	}
	if c.Risk.MaxSlippageBps > 10_000 {
		errs = append(errs, fmt.Errorf("risk.max_slippage_bps: %d above 10000", c.Risk.MaxSlippageBps))
	}
	return errors.Join(errs...)
}

// RetryDelay is the first backoff between transport retries.
func (s Submit) RetryDelay() time.Duration { return ms(s.RetryDelayMs) }

func (s Submit) MaxRetryDelay() time.Duration  { return ms(s.MaxRetryDelayMs) }
func (s Submit) ConfirmTimeout() time.Duration { return ms(s.ConfirmTimeoutMs) }
func (s Submit) PollInterval() time.Duration   { return ms(s.PollIntervalMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
