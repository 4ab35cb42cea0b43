//go:build integration

package migrator_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/citrus-finance/citrus-oracle/db/migrations"
	"github.com/citrus-finance/citrus-oracle/db/migrator"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

func setupPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "test_db",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:postgres@%s:%s/test_db?sslmode=disable", host, port.Port())

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(connStr))
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestMigrator_ApplyAll(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(ctx, t)

	m := migrator.New(pool, migrations.FS(), nil)
	if err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if count == 0 {
		t.Fatal("no migrations were applied")
	}

	applied, err := m.ListApplied(ctx)
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	if len(applied) != count {
		t.Fatalf("ListApplied returned %d entries, want %d", len(applied), count)
	}

	if err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("second ApplyAll failed: %v", err)
	}

	var newCount int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM migrations").Scan(&newCount); err != nil {
		t.Fatalf("failed to count migrations after second run: %v", err)
	}
	if newCount != count {
		t.Fatalf("migration count changed: expected %d, got %d", count, newCount)
	}
}

func TestMigrator_VerifySchema(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(ctx, t)

	m := migrator.New(pool, migrations.FS(), nil)
	if err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	expectedTables := []string{
		"migrations",
		"registry_settings",
		"price_source",
		"source_binding",
		"feed_binding",
		"price_snapshot",
		"asset_reference",
	}

	for _, tableName := range expectedTables {
		var exists bool
		err := pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public'
				AND table_name = $1
			)`, tableName).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", tableName, err)
		}
		if !exists {
			t.Errorf("expected table %s does not exist", tableName)
		}
	}
}

func TestMigrator_ChecksumVerification(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(ctx, t)

	fsys := fstest.MapFS{
		"0001_test.sql": &fstest.MapFile{Data: []byte(`
			CREATE TABLE test_table (
				id SERIAL PRIMARY KEY,
				name TEXT
			);
		`)},
	}

	m := migrator.New(pool, fsys, nil)
	if err := m.ApplyAll(ctx); err != nil {
		t.Fatalf("failed to apply initial migrations: %v", err)
	}

	fsys["0001_test.sql"] = &fstest.MapFile{Data: []byte(`
		CREATE TABLE test_table (
			id SERIAL PRIMARY KEY,
			name TEXT,
			email TEXT
		);
	`)}

	err := m.ApplyAll(ctx)
	if err == nil {
		t.Fatal("expected error for modified migration, got nil")
	}
	if !strings.Contains(err.Error(), "checksum verification failed") {
		t.Fatalf("expected checksum error, got: %v", err)
	}
}
