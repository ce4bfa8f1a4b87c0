// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Venue describes how to reach the trading venue and which account to trade.
type Venue struct {
	Endpoint string `yaml:"endpoint"`
	AppID    string `yaml:"app_id"`
	Account  string `yaml:"account"`
	Currency string `yaml:"currency"`
	// Accounts maps an account name to its API token. Environment variables win.
	Accounts map[string]string `yaml:"accounts,omitempty"`
}

// Trading holds the run-wide stake and stop settings.
type Trading struct {
	Stake      decimal.Decimal `yaml:"stake"`
	DelaySecs  int             `yaml:"delay_secs"`
	Percent    bool            `yaml:"percent"`
	Balance    decimal.Decimal `yaml:"balance"`
	Martingale bool            `yaml:"martingale"`
	StopWin    decimal.Decimal `yaml:"stop_win"`
	StopLoss   decimal.Decimal `yaml:"stop_loss"`
}

// Risk encodes guard-rails on martingale escalation.
type Risk struct {
	MaxStake decimal.Decimal `yaml:"max_stake"`
}

// Schedule points at the signal file and the zone its times are written in.
type Schedule struct {
	Path     string `yaml:"path"`
	Timezone string `yaml:"timezone"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Venue    Venue    `yaml:"venue"`
	Trading  Trading  `yaml:"trading"`
	Risk     Risk     `yaml:"risk"`
	Schedule Schedule `yaml:"schedule"`
}

// Defaults returns the settings used when a file omits them.
func Defaults() *Config {
	return &Config{
		App: App{Name: "derivbot", Env: "dev", MetricsAddr: ":9090", LogLevel: "info"},
		Venue: Venue{
			Endpoint: "wss://ws.binaryws.com/websockets/v3",
			AppID:    "1089",
			Currency: "USD",
		},
		Trading:  Trading{Stake: decimal.NewFromInt(1), Balance: decimal.NewFromInt(1000), Martingale: true},
		Schedule: Schedule{Path: "signals.txt"},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct on top of Defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Defaults()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
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

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case !c.Trading.Stake.IsPositive():
		return fmt.Errorf("trading.stake must be positive, got %s", c.Trading.Stake)
	case c.Trading.DelaySecs < 0:
		return fmt.Errorf("trading.delay_secs must not be negative, got %d", c.Trading.DelaySecs)
	case c.Trading.StopWin.IsNegative() || c.Trading.StopLoss.IsNegative():
		return fmt.Errorf("trading stops must not be negative")
	case c.Risk.MaxStake.IsNegative():
		return fmt.Errorf("risk.max_stake must not be negative, got %s", c.Risk.MaxStake)
	case c.Trading.Percent && !c.Trading.Balance.IsPositive():
		return fmt.Errorf("trading.balance must be positive in percent mode")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Delay converts delay_secs to a duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.Trading.DelaySecs) * time.Second
}

// Location resolves schedule.timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}
