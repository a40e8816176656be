package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage    = "docker.io/postgres:14.1-alpine"
	PostgresUser     = "postgres"
	PostgresPassword = "postgres"
	PostgresDBName   = "REELGEST_DB"
)

// SpawnPostgres starts a disposable PostgreSQL container, returning the
// DSN for connecting to it. The container is terminated when the
// test completes.
func SpawnPostgres(t *testing.T) string {
	ctx := context.Background()
	postgresC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(PostgresImage),
		postgres.WithDatabase(PostgresDBName),
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}

	t.Cleanup(func() {
		t.Log("Tearing down Postgres container...")
		if err := postgresC.Terminate(ctx); err != nil {
			t.Logf("WARNING: failed to terminate Postgres container: %s", err)
		}
	})

	dsn, err := postgresC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string for container: %s", err)
	}

	return dsn
}
