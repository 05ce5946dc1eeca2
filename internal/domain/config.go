package domain

import "time"

// Config holds the complete claim engine configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Reference  ReferenceConfig  `mapstructure:"reference"`
	Worker     WorkerConfig     `mapstructure:"worker"`

	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ReferenceMode selects how reference tables are served.
type ReferenceMode string

const (
	// ReferenceSnapshot loads every table once into an immutable index.
	ReferenceSnapshot ReferenceMode = "snapshot"

	// ReferenceLive queries the repository on every cache miss.
	ReferenceLive ReferenceMode = "live"
)

// ReferenceConfig controls reference data loading.
type ReferenceConfig struct {
	Mode ReferenceMode `mapstructure:"mode"`

	// SeedPath is an optional YAML seed applied on start when the
	// database holds no patterns.
	SeedPath string `mapstructure:"seed_path"`

	// TariffParquetPath is an optional Parquet file of tariffs imported
	// together with the seed.
	TariffParquetPath string `mapstructure:"tariff_parquet_path"`
}

// WorkerConfig controls the asynchronous claim worker.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds

	// AllowedOrigins lists browser origins allowed by CORS. Empty allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Lookup cache defaults.
const (
	DefaultLookupCapacity = 512
	DefaultLookupTTL      = 12 * time.Hour
)

// DefaultConfig returns a single-node configuration: SQLite, in-memory
// caches and the channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			AllowedOrigins: []string{},
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./claimengine.db",
		},
		Cache: CacheConfig{
			Type:           "memory",
			LookupCapacity: DefaultLookupCapacity,
			LookupTTL:      DefaultLookupTTL,
			LocalMaxSize:   10000,
			LocalTTL:       5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Reference: ReferenceConfig{
			Mode: ReferenceSnapshot,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "claimengine",
		},
	}
}

// ClusterConfig returns a multi-node configuration: PostgreSQL, a Redis
// second-level cache and NATS.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "pgx",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "claimengine",
		MaxOpenConns: 20,
	}
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.EnableTwoPhase = true
	cfg.Cache.LocalMaxSize = 1000
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
