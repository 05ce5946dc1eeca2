package domain

import (
	"context"
	"time"
)

// Repository is the SQL-backed persistence layer. It serves reference
// lookups directly (live mode) and bulk loads for the snapshot mode.
type Repository interface {
	ReferenceStore

	// ConsistencyRules returns all rules of one relation keyed by
	// normalized key.
	ConsistencyRules(ctx context.Context, relation Relation) (map[string][]string, error)

	// LoadReferenceData reads every reference table.
	LoadReferenceData(ctx context.Context) (*ReferenceData, error)

	// SaveReferenceData upserts reference rows in one transaction.
	SaveReferenceData(ctx context.Context, data *ReferenceData) error

	// ListTariffs returns every tariff ordered by key.
	ListTariffs(ctx context.Context) ([]TariffEntry, error)

	SaveAnalysis(ctx context.Context, a *ClaimAnalysis) error
	GetAnalysis(ctx context.Context, id string) (*ClaimAnalysis, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is "sqlite", "postgres" (lib/pq) or "pgx" (pgx pool).
	Driver string `mapstructure:"driver"`

	SQLitePath string `mapstructure:"sqlite_path"`

	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
