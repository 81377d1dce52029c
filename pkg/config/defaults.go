package config

const (
	defaultProvider      = "ollama"
	defaultStorageDriver = "sqlite"
	defaultKafkaTopic    = "deltas.chunks"
	defaultWorkers       = 2
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Provider: ProviderConfig{
			Name: defaultProvider,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Publish: PublishConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Recorder: RecorderConfig{
			Workers: defaultWorkers,
		},
	}
}
