package connectors

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is a versioned schema change applied in its own transaction.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the connector schema migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create data_connectors table",
			SQL: `
				CREATE TABLE IF NOT EXISTS data_connectors (
					id UUID PRIMARY KEY,
					namespace TEXT NOT NULL,
					slug TEXT NOT NULL,
					visibility TEXT NOT NULL DEFAULT 'private',
					description TEXT NOT NULL DEFAULT '',
					keywords TEXT[] NOT NULL DEFAULT '{}',
					storage_type TEXT NOT NULL,
					storage_readonly BOOLEAN NOT NULL DEFAULT TRUE,
					created_by TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					etag TEXT NOT NULL,
					CONSTRAINT data_connectors_namespace_slug_key UNIQUE (namespace, slug)
				);
				CREATE INDEX IF NOT EXISTS data_connectors_visibility_idx ON data_connectors (visibility);
			`,
		},
	}
}

// RunMigrations applies pending connector migrations, tracking applied
// versions in connector_schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS connector_schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration tracking table: %w", err)
	}

	for _, migration := range GetMigrations() {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM connector_schema_migrations WHERE version = $1)`,
			migration.Version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if applied {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO connector_schema_migrations (version) VALUES ($1)`, migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
