package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/deltas/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable viper consults.
const EnvPrefix = "DELTAS"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the DELTAS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (DELTAS_PROVIDER_NAME, DELTAS_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: DELTAS_PROVIDER_MODEL, DELTAS_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the effective Config from v. Values come through
// the full precedence chain, so bound flags and env vars are reflected.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Provider: ProviderConfig{
			Name:      v.GetString("provider.name"),
			Endpoint:  v.GetString("provider.endpoint"),
			Model:     v.GetString("provider.model"),
			MaxTokens: v.GetUint("provider.max_tokens"),
		},
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Publish: PublishConfig{
			KafkaBrokers: v.GetString("publish.kafka_brokers"),
			KafkaTopic:   v.GetString("publish.kafka_topic"),
		},
		Recorder: RecorderConfig{
			Workers: v.GetUint("recorder.workers"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Provider
	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.endpoint", d.Provider.Endpoint)
	v.SetDefault("provider.model", d.Provider.Model)
	v.SetDefault("provider.max_tokens", d.Provider.MaxTokens)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Publish
	v.SetDefault("publish.kafka_brokers", d.Publish.KafkaBrokers)
	v.SetDefault("publish.kafka_topic", d.Publish.KafkaTopic)

	// Recorder
	v.SetDefault("recorder.workers", d.Recorder.Workers)
}
