package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`

	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus"`

	// Provider configures the external model-inference collaborator.
	Provider ProviderConfig `yaml:"provider"`

	// Rules configures evaluation-time behavior of the rule engine.
	Rules RulesConfig `yaml:"rules"`

	// Batch configures the batch coordinator.
	Batch BatchConfig `yaml:"batch"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// ProviderConfig holds score provider settings. When URL is empty the
// engine falls back to the built-in deterministic heuristic provider.
type ProviderConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`

	// Threshold is the model score above which a transaction is fraud.
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`
}

// RulesConfig holds rule engine settings.
type RulesConfig struct {
	// VelocityWindow bounds the rolling transaction count injected into
	// frequency rules.
	VelocityWindow time.Duration `yaml:"velocity_window"`

	// Seed installs the default rule set at startup when the rule table
	// is empty.
	Seed bool `yaml:"seed"`
}

// BatchConfig holds batch coordinator settings.
type BatchConfig struct {
	MaxWorkers int `yaml:"max_workers" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the default single-node configuration:
// SQLite, in-memory LRU cache, channel bus, heuristic provider.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Provider: ProviderConfig{
			Timeout:   3 * time.Second,
			Threshold: 0.5,
		},
		Rules: RulesConfig{
			VelocityWindow: time.Hour,
			Seed:           true,
		},
		Batch: BatchConfig{
			MaxWorkers: 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}
