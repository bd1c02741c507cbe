package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Binary67/LLM-Prompt-Evolution/migrations"
)

// Migrate applies the embedded up migrations in order. The schema uses
// IF NOT EXISTS throughout, so reapplying is harmless.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := migrations.Up()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	for _, name := range names {
		content, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		slog.Debug("migration applied", "name", name)
	}
	return nil
}
