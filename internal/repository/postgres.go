package repository

import (
	"database/sql"
	"fmt"

	"github.com/opensource-finance/claimengine/internal/domain"
	_ "github.com/lib/pq"
)

// openPostgres opens a PostgreSQL connection through lib/pq.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	pc := postgresDefaults(cfg)

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pc.PostgresHost,
		pc.PostgresPort,
		pc.PostgresUser,
		pc.PostgresPassword,
		pc.PostgresDB,
		pc.PostgresSSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return db, nil
}

func postgresDefaults(cfg domain.RepositoryConfig) domain.RepositoryConfig {
	if cfg.PostgresHost == "" {
		cfg.PostgresHost = "localhost"
	}
	if cfg.PostgresPort == 0 {
		cfg.PostgresPort = 5432
	}
	if cfg.PostgresDB == "" {
		cfg.PostgresDB = "claimengine"
	}
	if cfg.PostgresSSLMode == "" {
		cfg.PostgresSSLMode = "disable"
	}
	return cfg
}
