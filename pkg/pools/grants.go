package pools

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
)

// GrantPoolsToUser associates a user with the given pools, replacing the
// existing associations unless appendPools is set. For users flagged
// no_default_access the default pool is excluded when resolving candidates,
// and a defensive re-check rejects it even if resolution let it through:
// the two enforcement points close the race between resolving candidate ids
// and the final write.
func (s *Service) GrantPoolsToUser(ctx context.Context, caller auth.Caller, userID string, poolIDs []int64, appendPools bool) error {
	if err := auth.RequireAdmin(caller); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user, err := s.lookupUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.NewMissingResource("user", userID)
	}

	candidates, err := resolveCandidatePools(ctx, tx, poolIDs, user.NoDefaultAccess)
	if err != nil {
		return err
	}
	if len(candidates) != len(dedupe(poolIDs)) {
		missing := missingIDs(poolIDs, candidates)
		return apperrors.NewMissingResource("resource pool", missing...)
	}
	for _, pool := range candidates {
		if user.NoDefaultAccess && pool.Default {
			return apperrors.NewValidation("user %s cannot be granted access to the default resource pool", userID)
		}
	}

	if !appendPools {
		if _, err := tx.ExecContext(ctx, `DELETE FROM resource_pool_members WHERE keycloak_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to clear pool associations: %w", err)
		}
	}
	for _, pool := range candidates {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resource_pool_members (pool_id, keycloak_id)
			VALUES ($1, $2)
			ON CONFLICT (pool_id, keycloak_id) DO NOTHING
		`, pool.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to grant pool access: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pool grant: %w", err)
	}
	return nil
}

// GrantUsersToPool associates users with a pool, replacing the pool's user
// set unless appendUsers is set. Granting the default pool to any user
// flagged no_default_access fails atomically before any write, listing the
// offending ids; the stored flag counts as much as the request payload's,
// so a payload cannot launder a known flagged user onto the default pool.
// Unknown users are implicitly created with their flag.
func (s *Service) GrantUsersToPool(ctx context.Context, caller auth.Caller, poolID int64, users []PoolUser, appendUsers bool) error {
	if err := auth.RequireAdmin(caller); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pool, err := scanPool(tx.QueryRowContext(ctx, `
		SELECT rp.id, rp.name, rp."default", rp.public, rp.quota_cpu, rp.quota_memory, rp.quota_gpu, rp.quota_storage
		FROM resource_pools rp
		WHERE rp.id = $1
		FOR UPDATE
	`, poolID))
	if err == sql.ErrNoRows {
		return apperrors.NewMissingResource("resource pool", fmt.Sprintf("%d", poolID))
	}
	if err != nil {
		return fmt.Errorf("failed to load resource pool: %w", err)
	}

	if pool.Default {
		denied := make(map[string]struct{})
		ids := make([]string, 0, len(users))
		for _, user := range users {
			ids = append(ids, user.KeycloakID)
			if user.NoDefaultAccess {
				denied[user.KeycloakID] = struct{}{}
			}
		}

		stored, err := flaggedUsers(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, id := range stored {
			denied[id] = struct{}{}
		}

		if len(denied) > 0 {
			rejected := make([]string, 0, len(denied))
			for id := range denied {
				rejected = append(rejected, id)
			}
			sort.Strings(rejected)
			return apperrors.NewValidation("user(s) %s cannot be granted access to the default resource pool", strings.Join(rejected, ", "))
		}
	}

	for _, user := range users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resource_pool_users (keycloak_id, no_default_access)
			VALUES ($1, $2)
			ON CONFLICT (keycloak_id) DO NOTHING
		`, user.KeycloakID, user.NoDefaultAccess)
		if err != nil {
			return fmt.Errorf("failed to create user record: %w", err)
		}
	}

	if !appendUsers {
		if _, err := tx.ExecContext(ctx, `DELETE FROM resource_pool_members WHERE pool_id = $1`, poolID); err != nil {
			return fmt.Errorf("failed to clear pool members: %w", err)
		}
	}
	for _, user := range users {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resource_pool_members (pool_id, keycloak_id)
			VALUES ($1, $2)
			ON CONFLICT (pool_id, keycloak_id) DO NOTHING
		`, poolID, user.KeycloakID)
		if err != nil {
			return fmt.Errorf("failed to grant pool membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user grant: %w", err)
	}
	return nil
}

// CreateUser inserts a pool-access record, failing on duplicates.
func (s *Service) CreateUser(ctx context.Context, caller auth.Caller, user PoolUser) (*PoolUser, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_pool_users (keycloak_id, no_default_access)
		VALUES ($1, $2)
	`, user.KeycloakID, user.NoDefaultAccess)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, apperrors.NewConflict("user %s already exists", user.KeycloakID)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// GetUser returns a user's pool-access record.
func (s *Service) GetUser(ctx context.Context, caller auth.Caller, userID string) (*PoolUser, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}
	user, err := s.lookupUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewMissingResource("user", userID)
	}
	return user, nil
}

// RemoveUser deletes a user record and all of its pool associations in one
// transaction.
func (s *Service) RemoveUser(ctx context.Context, caller auth.Caller, userID string) error {
	if err := auth.RequireAdmin(caller); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_pool_members WHERE keycloak_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to remove pool associations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_pool_users WHERE keycloak_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user removal: %w", err)
	}
	return nil
}

// ListPoolUsers returns the users associated with a pool.
func (s *Service) ListPoolUsers(ctx context.Context, caller auth.Caller, poolID int64) ([]PoolUser, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.keycloak_id, u.no_default_access
		FROM resource_pool_users u
		JOIN resource_pool_members m ON m.keycloak_id = u.keycloak_id
		WHERE m.pool_id = $1
		ORDER BY u.keycloak_id
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool users: %w", err)
	}
	defer rows.Close()

	var users []PoolUser
	for rows.Next() {
		var user PoolUser
		if err := rows.Scan(&user.KeycloakID, &user.NoDefaultAccess); err != nil {
			return nil, fmt.Errorf("failed to scan pool user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// flaggedUsers returns the ids among the given ones whose stored record
// carries no_default_access.
func flaggedUsers(ctx context.Context, q dbtx, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT keycloak_id FROM resource_pool_users
		WHERE keycloak_id = ANY($1) AND no_default_access
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load user flags: %w", err)
	}
	defer rows.Close()

	var flagged []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user flag: %w", err)
		}
		flagged = append(flagged, id)
	}
	return flagged, rows.Err()
}

// resolveCandidatePools loads the requested pools, excluding the default
// pool up front when the grantee may not access it.
func resolveCandidatePools(ctx context.Context, q dbtx, poolIDs []int64, excludeDefault bool) ([]ResourcePool, error) {
	ids := dedupe(poolIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT rp.id, rp.name, rp."default", rp.public, rp.quota_cpu, rp.quota_memory, rp.quota_gpu, rp.quota_storage
		FROM resource_pools rp
		WHERE rp.id = ANY($1)
	`
	if excludeDefault {
		query += ` AND NOT rp."default"`
	}

	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve candidate pools: %w", err)
	}
	defer rows.Close()

	var candidates []ResourcePool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate pool: %w", err)
		}
		candidates = append(candidates, *pool)
	}
	return candidates, rows.Err()
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []int64, resolved []ResourcePool) []string {
	found := make(map[int64]struct{}, len(resolved))
	for _, pool := range resolved {
		found[pool.ID] = struct{}{}
	}
	var missing []string
	for _, id := range dedupe(requested) {
		if _, ok := found[id]; !ok {
			missing = append(missing, fmt.Sprintf("%d", id))
		}
	}
	return missing
}
