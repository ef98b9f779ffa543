package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"nem-cosigner/internal/storage/postgres"
)

// RunPostgresMigrations applies every embedded schema file in name order,
// each inside its own transaction. The files use IF NOT EXISTS so a
// restart re-applies them harmlessly.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := fs.Glob(PostgresFS, "postgres/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		ddl, err := fs.ReadFile(PostgresFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", path.Base(name), err)
		}
		if err := apply(ctx, pool, string(ddl)); err != nil {
			return fmt.Errorf("migration %s: %w", path.Base(name), err)
		}
	}
	return nil
}

func apply(ctx context.Context, pool *postgres.Pool, ddl string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
