package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

// NewMigrator builds a goose provider over the embedded migrations. Runs
// take a Postgres advisory lock so concurrent startups apply each file once.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS) (*goose.Provider, error) {
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("platform/db: migration lock: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("platform/db: migrations: %w", err)
	}
	return provider, nil
}

// MigrationNames lists the migration files of provider in apply order.
func MigrationNames(provider *goose.Provider) []string {
	sources := provider.ListSources()
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, path.Base(src.Path))
	}
	return names
}

// Migrate applies every pending migration of fsys and returns the files it ran.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	provider, err := NewMigrator(pool, fsys)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = provider.Close()
	}()
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("platform/db: apply migrations: %w", err)
	}
	applied := make([]string, 0, len(results))
	for _, res := range results {
		applied = append(applied, path.Base(res.Source.Path))
	}
	return applied, nil
}
