// Package main applies the embedded database migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/citrus-finance/citrus-oracle/db/migrations"
	"github.com/citrus-finance/citrus-oracle/db/migrator"
	"github.com/citrus-finance/citrus-oracle/internal/adapters/outbound/postgres"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/env"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbURL := fs.String("db", "", "PostgreSQL connection URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	url := *dbURL
	if url == "" {
		url = env.Get("DATABASE_URL", "")
	}
	if url == "" {
		return fmt.Errorf("database URL not provided (use -db flag or DATABASE_URL env var)")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(url))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	m := migrator.New(pool, migrations.FS(), logger)
	if err := m.ApplyAll(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	applied, err := m.ListApplied(ctx)
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	logger.Info("all migrations up to date", "applied", len(applied))
	return nil
}
