package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/opensource-finance/claimengine/internal/domain"
)

// openPgx opens a pgx connection pool and exposes it as *sql.DB so the
// repository queries stay driver-neutral. The returned func closes the
// pool.
func openPgx(cfg domain.RepositoryConfig) (*sql.DB, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(PostgresURL(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return stdlib.OpenDBFromPool(pool), pool.Close, nil
}

// PostgresURL builds a postgres:// connection URL from the config.
func PostgresURL(cfg domain.RepositoryConfig) string {
	pc := postgresDefaults(cfg)

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(pc.PostgresHost, strconv.Itoa(pc.PostgresPort)),
		Path:   "/" + pc.PostgresDB,
	}
	if pc.PostgresUser != "" {
		u.User = url.UserPassword(pc.PostgresUser, pc.PostgresPassword)
	}
	q := url.Values{}
	q.Set("sslmode", pc.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
