// Package config loads the engine configuration from an optional YAML file
// and CLAIMENGINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g.
// CLAIMENGINE_SERVER_PORT or CLAIMENGINE_CACHE_REDIS_ADDR.
const EnvPrefix = "CLAIMENGINE"

// Profiles select the base defaults before the file and env are applied.
const (
	ProfileSingle  = "single"
	ProfileCluster = "cluster"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads path (if non-empty) and the environment on top of the
// profile defaults. The profile comes from the "profile" key or
// CLAIMENGINE_PROFILE. CLAIMENGINE_DEBUG=true forces debug logging.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetDefault("profile", ProfileSingle)
	var base *domain.Config
	switch profile := strings.ToLower(v.GetString("profile")); profile {
	case ProfileSingle, "":
		base = domain.DefaultConfig()
	case ProfileCluster:
		base = domain.ClusterConfig()
	default:
		return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidConfig, profile)
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.allowed_origins", c.Server.AllowedOrigins)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlite_path", c.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", c.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", c.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", c.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", c.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.lookup_capacity", c.Cache.LookupCapacity)
	v.SetDefault("cache.lookup_ttl", c.Cache.LookupTTL)
	v.SetDefault("cache.local_max_size", c.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", c.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", c.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", c.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", c.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", c.Cache.EnableTwoPhase)

	v.SetDefault("event_bus.type", c.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", c.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_url", c.EventBus.NATSUrl)
	v.SetDefault("event_bus.nats_token", c.EventBus.NATSToken)
	v.SetDefault("event_bus.nats_max_reconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("event_bus.nats_reconnect_wait", c.EventBus.NATSReconnectWait)

	v.SetDefault("reference.mode", string(c.Reference.Mode))
	v.SetDefault("reference.seed_path", c.Reference.SeedPath)
	v.SetDefault("reference.tariff_parquet_path", c.Reference.TariffParquetPath)

	v.SetDefault("worker.enabled", c.Worker.Enabled)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)

	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.service_name", c.Tracing.ServiceName)
}

// Validate checks enumerated values and bounds.
func Validate(cfg *domain.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(cfg.Server.Port > 0 && cfg.Server.Port < 65536, "server.port %d out of range", cfg.Server.Port)
	for _, origin := range cfg.Server.AllowedOrigins {
		check(origin == "*" || strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://"),
			"server.allowed_origins entry %q", origin)
	}
	check(oneOf(cfg.Repository.Driver, "sqlite", "postgres", "pgx"), "repository.driver %q", cfg.Repository.Driver)
	check(oneOf(cfg.Cache.Type, "memory", "redis"), "cache.type %q", cfg.Cache.Type)
	check(cfg.Cache.LookupCapacity > 0, "cache.lookup_capacity must be positive")
	check(cfg.Cache.LookupTTL >= 0, "cache.lookup_ttl must not be negative")
	check(oneOf(cfg.EventBus.Type, "channel", "nats"), "event_bus.type %q", cfg.EventBus.Type)
	check(oneOf(string(cfg.Reference.Mode), string(domain.ReferenceSnapshot), string(domain.ReferenceLive)),
		"reference.mode %q", cfg.Reference.Mode)
	check(oneOf(cfg.Logging.Level, "debug", "info", "warn", "error"), "logging.level %q", cfg.Logging.Level)
	check(oneOf(cfg.Logging.Format, "json", "text"), "logging.format %q", cfg.Logging.Format)

	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
