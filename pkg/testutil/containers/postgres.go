//go:build integration

package containers

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"veritrail/internal/platform/config"
	"veritrail/internal/platform/postgres"
)

// PostgresContainer wraps a migrated Postgres instance with an open pool.
type PostgresContainer struct {
	Container testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
}

// NewPostgresContainer starts Postgres and applies the repository's
// migrations.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("veritrail_test"),
		tcpostgres.WithUsername("veritrail"),
		tcpostgres.WithPassword("veritrail"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	dbCfg := config.DB{
		URL:            connString,
		MaxConns:       8,
		MinConns:       1,
		MigrationsPath: migrationsDir(t),
	}

	if err := postgres.Migrate(dbCfg); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open pool: %v", err)
	}

	return &PostgresContainer{
		Container:  container,
		ConnString: connString,
		Pool:       pool,
	}
}

// TruncateAll clears business tables between tests. The append-only trigger
// fires per row, so TRUNCATE is the one legal way to reset the audit log.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx,
		`TRUNCATE audit_log, tenant_invitations, observations, tenants`)
	return err
}

// migrationsDir resolves the repository's migrations directory relative to
// this source file, so integration tests work from any package directory.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("could not resolve caller path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "migrations")
}
