package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent deltas configuration stored as config.toml
// in the .deltas/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version  int            `toml:"version"`
	Provider ProviderConfig `toml:"provider"`
	Storage  StorageConfig  `toml:"storage"`
	Publish  PublishConfig  `toml:"publish"`
	Recorder RecorderConfig `toml:"recorder"`
}

// ProviderConfig selects the vendor a turn is streamed from. Empty Endpoint
// and Model fall back to the provider's own defaults.
type ProviderConfig struct {
	Name      string `toml:"name,omitempty"`
	Endpoint  string `toml:"endpoint,omitempty"`
	Model     string `toml:"model,omitempty"`
	MaxTokens uint   `toml:"max_tokens,omitempty"`
}

// StorageConfig selects where finished transcripts are kept.
// Driver is one of "sqlite", "postgres", "memory" or "none".
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// PublishConfig holds chunk publication settings. Publication is disabled
// while KafkaBrokers is empty.
type PublishConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// RecorderConfig sizes the background transcript recorder.
type RecorderConfig struct {
	Workers uint `toml:"workers,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"provider.name": {
		get: func(c *Config) string { return c.Provider.Name },
		set: func(c *Config, v string) error { c.Provider.Name = v; return nil },
	},
	"provider.endpoint": {
		get: func(c *Config) string { return c.Provider.Endpoint },
		set: func(c *Config, v string) error { c.Provider.Endpoint = v; return nil },
	},
	"provider.model": {
		get: func(c *Config) string { return c.Provider.Model },
		set: func(c *Config, v string) error { c.Provider.Model = v; return nil },
	},
	"provider.max_tokens": {
		get: func(c *Config) string { return formatUint(c.Provider.MaxTokens) },
		set: func(c *Config, v string) error {
			n, err := parseUint("provider.max_tokens", v)
			c.Provider.MaxTokens = n
			return err
		},
	},
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case "sqlite", "postgres", "memory", "none":
				c.Storage.Driver = v
				return nil
			}
			return fmt.Errorf("invalid value for storage.driver: %q (expected sqlite, postgres, memory or none)", v)
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"publish.kafka_brokers": {
		get: func(c *Config) string { return c.Publish.KafkaBrokers },
		set: func(c *Config, v string) error { c.Publish.KafkaBrokers = v; return nil },
	},
	"publish.kafka_topic": {
		get: func(c *Config) string { return c.Publish.KafkaTopic },
		set: func(c *Config, v string) error { c.Publish.KafkaTopic = v; return nil },
	},
	"recorder.workers": {
		get: func(c *Config) string { return formatUint(c.Recorder.Workers) },
		set: func(c *Config, v string) error {
			n, err := parseUint("recorder.workers", v)
			c.Recorder.Workers = n
			return err
		},
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string) (uint, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return uint(n), nil
}
