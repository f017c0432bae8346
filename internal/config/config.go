// Package config handles loading and validating collector configuration from
// YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the collector.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Symbols []string      `yaml:"symbols"`
	Feed    FeedConfig    `yaml:"feed"`
	Journal JournalConfig `yaml:"journal"`
	Shm     ShmConfig     `yaml:"shm"`
	Stats   StatsConfig   `yaml:"stats"`
	API     APIConfig     `yaml:"api"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
}

// FeedConfig configures the Binance websocket streams.
type FeedConfig struct {
	UseTestnet           bool   `yaml:"useTestnet"`
	KlineInterval        string `yaml:"klineInterval"`
	ReconnectDelayMs     int    `yaml:"reconnectDelayMs"`
	MaxReconnectAttempts int    `yaml:"maxReconnectAttempts"`
}

// JournalConfig configures the durable record files.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// ShmConfig configures the shared memory region and publish cadence.
type ShmConfig struct {
	Name             string `yaml:"name"`
	Dir              string `yaml:"dir"` // empty = platform default
	RegionSize       int    `yaml:"regionSize"`
	SlotSize         int    `yaml:"slotSize"` // 0 = divide region evenly
	RingCapacity     int    `yaml:"ringCapacity"`
	UpdateIntervalMs int    `yaml:"updateIntervalMs"`
	MinRewriteGapMs  int    `yaml:"minRewriteGapMs"`
}

// StatsConfig configures the periodic throughput report.
type StatsConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMs int  `yaml:"intervalMs"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listenAddress"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("setting config defaults: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies sensible defaults for optional fields.
func (c *Config) setDefaults() error {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	if c.Feed.KlineInterval == "" {
		c.Feed.KlineInterval = "1m"
	}
	if c.Feed.ReconnectDelayMs == 0 {
		c.Feed.ReconnectDelayMs = 1000
	}
	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = 10
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "data"
	}
	if c.Shm.Name == "" {
		c.Shm.Name = "binance_market_data"
	}
	if c.Shm.RegionSize == 0 {
		c.Shm.RegionSize = 64 << 20
	}
	if c.Shm.RingCapacity == 0 {
		c.Shm.RingCapacity = 100
	}
	if c.Shm.UpdateIntervalMs == 0 {
		c.Shm.UpdateIntervalMs = 500
	}
	if c.Shm.MinRewriteGapMs == 0 {
		c.Shm.MinRewriteGapMs = 1000
	}
	if c.Stats.IntervalMs == 0 {
		c.Stats.IntervalMs = 5000
	}
	if c.API.ListenAddress == "" {
		c.API.ListenAddress = ":8880"
	}
	return nil
}
