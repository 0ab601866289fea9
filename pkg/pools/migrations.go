package pools

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the resource pool schema. The partial unique
// indexes back the application-level default-uniqueness checks so that two
// concurrent inserts cannot both observe "no default exists yet".
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create resource_pools table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_pools (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					"default" BOOLEAN NOT NULL DEFAULT FALSE,
					public BOOLEAN NOT NULL DEFAULT FALSE,
					quota_cpu DOUBLE PRECISION,
					quota_memory BIGINT,
					quota_gpu BIGINT,
					quota_storage BIGINT
				);

				CREATE UNIQUE INDEX resource_pools_one_default
					ON resource_pools ((TRUE)) WHERE "default";
				CREATE INDEX idx_resource_pools_public ON resource_pools(public);
			`,
		},
		{
			Version:     2,
			Description: "Create resource_classes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_classes (
					id BIGSERIAL PRIMARY KEY,
					pool_id BIGINT NOT NULL REFERENCES resource_pools(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					cpu DOUBLE PRECISION NOT NULL,
					memory BIGINT NOT NULL,
					gpu BIGINT NOT NULL DEFAULT 0,
					max_storage BIGINT NOT NULL,
					default_storage BIGINT NOT NULL,
					"default" BOOLEAN NOT NULL DEFAULT FALSE,
					node_affinities JSONB NOT NULL DEFAULT '[]',
					tolerations JSONB NOT NULL DEFAULT '[]'
				);

				CREATE UNIQUE INDEX resource_classes_one_default_per_pool
					ON resource_classes (pool_id) WHERE "default";
				CREATE INDEX idx_resource_classes_pool_id ON resource_classes(pool_id);
				CREATE INDEX idx_resource_classes_name ON resource_classes(name);
			`,
		},
		{
			Version:     3,
			Description: "Create resource_pool_users and resource_pool_members tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_pool_users (
					keycloak_id VARCHAR(255) PRIMARY KEY,
					no_default_access BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE TABLE IF NOT EXISTS resource_pool_members (
					pool_id BIGINT NOT NULL REFERENCES resource_pools(id) ON DELETE CASCADE,
					keycloak_id VARCHAR(255) NOT NULL REFERENCES resource_pool_users(keycloak_id) ON DELETE CASCADE,
					PRIMARY KEY (pool_id, keycloak_id)
				);

				CREATE INDEX idx_resource_pool_members_keycloak_id ON resource_pool_members(keycloak_id);
			`,
		},
	}
}

// RunMigrations applies all pending migrations, tracking versions in
// pool_schema_migrations. Each migration runs in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pool_schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range GetMigrations() {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pool_schema_migrations WHERE version = $1)`,
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
		if _, err := tx.ExecContext(ctx, `INSERT INTO pool_schema_migrations (version) VALUES ($1)`, migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
