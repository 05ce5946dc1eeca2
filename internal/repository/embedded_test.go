package repository

import (
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
)

const embeddedPort = 15433

// startEmbeddedPostgres starts a throwaway PostgreSQL on embeddedPort.
func startEmbeddedPostgres(t *testing.T) *embeddedpostgres.EmbeddedPostgres {
	t.Helper()

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Username("test").
		Password("test").
		Database("test").
		Port(embeddedPort).
		RuntimePath(t.TempDir()).
		StartTimeout(60 * time.Second))

	if err := pg.Start(); err != nil {
		t.Fatalf("failed to start embedded postgres: %v", err)
	}
	return pg
}
