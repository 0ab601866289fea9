package pools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
)

// Service implements resource pool and class management over PostgreSQL.
// All mutations are admin-only and run inside a single transaction so the
// invariant checks and the write see the same state.
type Service struct {
	db *sql.DB
}

// NewService creates a new pool service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a postgres unique-key violation,
// optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || string(pqErr.Code) != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// CreatePool creates a resource pool with its quota and classes. A second
// default pool is rejected; the existence check and the insert share one
// transaction, backed by a partial unique index for the race window.
func (s *Service) CreatePool(ctx context.Context, caller auth.Caller, pool ResourcePool) (*ResourcePool, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}

	defaults := 0
	for _, class := range pool.Classes {
		if class.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return nil, apperrors.NewValidation("there can only be one default resource class per resource pool")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if pool.Default {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM resource_pools WHERE "default")`).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check for existing default pool: %w", err)
		}
		if exists {
			return nil, apperrors.NewValidation("there can only be one default resource pool and one already exists")
		}
	}

	var quotaCPU sql.NullFloat64
	var quotaMemory, quotaGPU, quotaStorage sql.NullInt64
	if pool.Quota != nil {
		quotaCPU = sql.NullFloat64{Float64: pool.Quota.CPU, Valid: true}
		quotaMemory = sql.NullInt64{Int64: pool.Quota.Memory, Valid: true}
		quotaGPU = sql.NullInt64{Int64: pool.Quota.GPU, Valid: true}
		if pool.Quota.Storage != nil {
			quotaStorage = sql.NullInt64{Int64: *pool.Quota.Storage, Valid: true}
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO resource_pools (name, "default", public, quota_cpu, quota_memory, quota_gpu, quota_storage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, pool.Name, pool.Default, pool.Public, quotaCPU, quotaMemory, quotaGPU, quotaStorage).Scan(&pool.ID)
	if err != nil {
		if isUniqueViolation(err, "resource_pools_one_default") {
			return nil, apperrors.NewValidation("there can only be one default resource pool and one already exists")
		}
		return nil, fmt.Errorf("failed to insert resource pool: %w", err)
	}

	for i := range pool.Classes {
		pool.Classes[i].PoolID = pool.ID
		if err := insertClass(ctx, tx, &pool.Classes[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pool insert: %w", err)
	}
	return &pool, nil
}

// GetPool returns one pool the caller may see, or MissingResourceError.
func (s *Service) GetPool(ctx context.Context, caller auth.Caller, id int64) (*ResourcePool, error) {
	pred, err := PoolFilter(caller, nil, 2)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT rp.id, rp.name, rp."default", rp.public, rp.quota_cpu, rp.quota_memory, rp.quota_gpu, rp.quota_storage
		FROM resource_pools rp
		WHERE rp.id = $1 AND %s
	`, pred.Where)
	args := append([]interface{}{id}, pred.Args...)

	pool, err := scanPool(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewMissingResource("resource pool", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource pool: %w", err)
	}

	classes, err := loadClasses(ctx, s.db, pool.ID)
	if err != nil {
		return nil, err
	}
	pool.Classes = classes
	return pool, nil
}

// ListPools lists pools visible to the caller. When targetUserID is given
// the listing is about that user; non-admins may only query themselves.
func (s *Service) ListPools(ctx context.Context, caller auth.Caller, targetUserID *string) ([]ResourcePool, error) {
	var target *PoolUser
	if targetUserID != nil {
		user, err := s.lookupUser(ctx, s.db, *targetUserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			// Unknown users have no memberships and no flags yet.
			user = &PoolUser{KeycloakID: *targetUserID}
		}
		target = user
	}

	pred, err := PoolFilter(caller, target, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT rp.id, rp.name, rp."default", rp.public, rp.quota_cpu, rp.quota_memory, rp.quota_gpu, rp.quota_storage
		FROM resource_pools rp
		WHERE %s
		ORDER BY rp.id
	`, pred.Where)

	rows, err := s.db.QueryContext(ctx, query, pred.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource pools: %w", err)
	}
	defer rows.Close()

	var result []ResourcePool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource pool: %w", err)
		}
		result = append(result, *pool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resource pools: %w", err)
	}

	for i := range result {
		classes, err := loadClasses(ctx, s.db, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Classes = classes
	}
	return result, nil
}

// UpdatePool applies a patch to a pool. The default flag is not patchable.
func (s *Service) UpdatePool(ctx context.Context, caller auth.Caller, id int64, patch PoolPatch) (*ResourcePool, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pool, err := scanPool(tx.QueryRowContext(ctx, `
		SELECT rp.id, rp.name, rp."default", rp.public, rp.quota_cpu, rp.quota_memory, rp.quota_gpu, rp.quota_storage
		FROM resource_pools rp
		WHERE rp.id = $1
		FOR UPDATE
	`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewMissingResource("resource pool", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource pool: %w", err)
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if patch.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *patch.Name)
		argPos++
		pool.Name = *patch.Name
	}
	if patch.Public != nil {
		setClauses = append(setClauses, fmt.Sprintf("public = $%d", argPos))
		args = append(args, *patch.Public)
		argPos++
		pool.Public = *patch.Public
	}
	if patch.Quota != nil {
		if pool.Quota == nil {
			pool.Quota = &Quota{}
		}
		if patch.Quota.CPU != nil {
			setClauses = append(setClauses, fmt.Sprintf("quota_cpu = $%d", argPos))
			args = append(args, *patch.Quota.CPU)
			argPos++
			pool.Quota.CPU = *patch.Quota.CPU
		}
		if patch.Quota.Memory != nil {
			setClauses = append(setClauses, fmt.Sprintf("quota_memory = $%d", argPos))
			args = append(args, *patch.Quota.Memory)
			argPos++
			pool.Quota.Memory = *patch.Quota.Memory
		}
		if patch.Quota.GPU != nil {
			setClauses = append(setClauses, fmt.Sprintf("quota_gpu = $%d", argPos))
			args = append(args, *patch.Quota.GPU)
			argPos++
			pool.Quota.GPU = *patch.Quota.GPU
		}
		if patch.Quota.Storage != nil {
			setClauses = append(setClauses, fmt.Sprintf("quota_storage = $%d", argPos))
			args = append(args, *patch.Quota.Storage)
			argPos++
			pool.Quota.Storage = patch.Quota.Storage
		}
	}

	if len(setClauses) > 0 {
		args = append(args, id)
		query := fmt.Sprintf("UPDATE resource_pools SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to update resource pool: %w", err)
		}
	}

	classes, err := loadClasses(ctx, tx, pool.ID)
	if err != nil {
		return nil, err
	}
	pool.Classes = classes

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pool update: %w", err)
	}
	return pool, nil
}

// DeletePool deletes a pool and returns its prior state. Deleting the
// default pool is rejected; deleting a missing pool is a no-op success.
func (s *Service) DeletePool(ctx context.Context, caller auth.Caller, id int64) (*ResourcePool, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pool, err := scanPool(tx.QueryRowContext(ctx, `
		SELECT rp.id, rp.name, rp."default", rp.public, rp.quota_cpu, rp.quota_memory, rp.quota_gpu, rp.quota_storage
		FROM resource_pools rp
		WHERE rp.id = $1
		FOR UPDATE
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource pool: %w", err)
	}
	if pool.Default {
		return nil, apperrors.NewValidation("the default resource pool cannot be deleted")
	}

	classes, err := loadClasses(ctx, tx, pool.ID)
	if err != nil {
		return nil, err
	}
	pool.Classes = classes

	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_pools WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete resource pool: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit pool delete: %w", err)
	}
	return pool, nil
}

// CreateClass inserts a class into a pool. A second default class for the
// same pool is rejected inside the insert transaction.
func (s *Service) CreateClass(ctx context.Context, caller auth.Caller, poolID int64, class ResourceClass) (*ResourceClass, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM resource_pools WHERE id = $1)`, poolID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check resource pool: %w", err)
	}
	if !exists {
		return nil, apperrors.NewMissingResource("resource pool", fmt.Sprintf("%d", poolID))
	}

	if class.Default {
		var hasDefault bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM resource_classes WHERE pool_id = $1 AND "default")`, poolID).Scan(&hasDefault); err != nil {
			return nil, fmt.Errorf("failed to check for existing default class: %w", err)
		}
		if hasDefault {
			return nil, apperrors.NewValidation("there can only be one default resource class per resource pool")
		}
	}

	class.PoolID = poolID
	if err := insertClass(ctx, tx, &class); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit class insert: %w", err)
	}
	return &class, nil
}

// UpdateClass patches a class scoped to its pool. Only the default class
// may be updated through this path; non-default classes are managed through
// the pool-level admin path.
func (s *Service) UpdateClass(ctx context.Context, caller auth.Caller, poolID, classID int64, patch ClassPatch) (*ResourceClass, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	class, err := scanClass(tx.QueryRowContext(ctx, `
		SELECT id, pool_id, name, cpu, memory, gpu, max_storage, default_storage, "default", node_affinities, tolerations
		FROM resource_classes
		WHERE id = $1 AND pool_id = $2
		FOR UPDATE
	`, classID, poolID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewMissingResource("resource class", fmt.Sprintf("%d", classID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource class: %w", err)
	}
	if !class.Default {
		return nil, apperrors.NewValidation("only the default resource class can be updated")
	}

	if patch.Name != nil {
		class.Name = *patch.Name
	}
	if patch.CPU != nil {
		class.CPU = *patch.CPU
	}
	if patch.Memory != nil {
		class.Memory = *patch.Memory
	}
	if patch.GPU != nil {
		class.GPU = *patch.GPU
	}
	if patch.MaxStorage != nil {
		class.MaxStorage = *patch.MaxStorage
	}
	if patch.DefaultStorage != nil {
		class.DefaultStorage = *patch.DefaultStorage
	}
	if patch.NodeAffinities != nil {
		class.NodeAffinities = mergeNodeAffinities(class.NodeAffinities, patch.NodeAffinities)
	}
	if patch.Tolerations != nil {
		class.Tolerations = patch.Tolerations
	}

	affinitiesJSON, err := json.Marshal(class.NodeAffinities)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node affinities: %w", err)
	}
	tolerationsJSON, err := json.Marshal(class.Tolerations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tolerations: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE resource_classes
		SET name = $1, cpu = $2, memory = $3, gpu = $4, max_storage = $5, default_storage = $6,
		    node_affinities = $7, tolerations = $8
		WHERE id = $9
	`, class.Name, class.CPU, class.Memory, class.GPU, class.MaxStorage, class.DefaultStorage,
		affinitiesJSON, tolerationsJSON, class.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update resource class: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit class update: %w", err)
	}
	return class, nil
}

// DeleteClass deletes a class scoped to its pool. The default class cannot
// be deleted.
func (s *Service) DeleteClass(ctx context.Context, caller auth.Caller, poolID, classID int64) error {
	if err := auth.RequireAdmin(caller); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	class, err := scanClass(tx.QueryRowContext(ctx, `
		SELECT id, pool_id, name, cpu, memory, gpu, max_storage, default_storage, "default", node_affinities, tolerations
		FROM resource_classes
		WHERE id = $1 AND pool_id = $2
		FOR UPDATE
	`, classID, poolID))
	if err == sql.ErrNoRows {
		return apperrors.NewMissingResource("resource class", fmt.Sprintf("%d", classID))
	}
	if err != nil {
		return fmt.Errorf("failed to load resource class: %w", err)
	}
	if class.Default {
		return apperrors.NewValidation("the default resource class cannot be deleted")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_classes WHERE id = $1`, classID); err != nil {
		return fmt.Errorf("failed to delete resource class: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit class delete: %w", err)
	}
	return nil
}

// insertClass writes one class row, mapping the per-pool default uniqueness
// index onto the taxonomy error.
func insertClass(ctx context.Context, q dbtx, class *ResourceClass) error {
	affinitiesJSON, err := json.Marshal(class.NodeAffinities)
	if err != nil {
		return fmt.Errorf("failed to marshal node affinities: %w", err)
	}
	tolerationsJSON, err := json.Marshal(class.Tolerations)
	if err != nil {
		return fmt.Errorf("failed to marshal tolerations: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO resource_classes (pool_id, name, cpu, memory, gpu, max_storage, default_storage, "default", node_affinities, tolerations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, class.PoolID, class.Name, class.CPU, class.Memory, class.GPU, class.MaxStorage,
		class.DefaultStorage, class.Default, affinitiesJSON, tolerationsJSON).Scan(&class.ID)
	if err != nil {
		if isUniqueViolation(err, "resource_classes_one_default_per_pool") {
			return apperrors.NewValidation("there can only be one default resource class per resource pool")
		}
		return fmt.Errorf("failed to insert resource class: %w", err)
	}
	return nil
}

// loadClasses returns a pool's classes ordered by name.
func loadClasses(ctx context.Context, q dbtx, poolID int64) ([]ResourceClass, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, pool_id, name, cpu, memory, gpu, max_storage, default_storage, "default", node_affinities, tolerations
		FROM resource_classes
		WHERE pool_id = $1
		ORDER BY name
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource classes: %w", err)
	}
	defer rows.Close()

	var classes []ResourceClass
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource class: %w", err)
		}
		classes = append(classes, *class)
	}
	return classes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPool(scanner rowScanner) (*ResourcePool, error) {
	var pool ResourcePool
	var quotaCPU sql.NullFloat64
	var quotaMemory, quotaGPU, quotaStorage sql.NullInt64

	err := scanner.Scan(&pool.ID, &pool.Name, &pool.Default, &pool.Public,
		&quotaCPU, &quotaMemory, &quotaGPU, &quotaStorage)
	if err != nil {
		return nil, err
	}

	if quotaCPU.Valid || quotaMemory.Valid || quotaGPU.Valid {
		pool.Quota = &Quota{
			CPU:    quotaCPU.Float64,
			Memory: quotaMemory.Int64,
			GPU:    quotaGPU.Int64,
		}
		if quotaStorage.Valid {
			storage := quotaStorage.Int64
			pool.Quota.Storage = &storage
		}
	}
	return &pool, nil
}

func scanClass(scanner rowScanner) (*ResourceClass, error) {
	var class ResourceClass
	var affinitiesJSON, tolerationsJSON []byte

	err := scanner.Scan(&class.ID, &class.PoolID, &class.Name, &class.CPU, &class.Memory,
		&class.GPU, &class.MaxStorage, &class.DefaultStorage, &class.Default,
		&affinitiesJSON, &tolerationsJSON)
	if err != nil {
		return nil, err
	}

	if len(affinitiesJSON) > 0 {
		if err := json.Unmarshal(affinitiesJSON, &class.NodeAffinities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node affinities: %w", err)
		}
	}
	if len(tolerationsJSON) > 0 {
		if err := json.Unmarshal(tolerationsJSON, &class.Tolerations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tolerations: %w", err)
		}
	}
	return &class, nil
}

// lookupUser returns the pool-access record for a keycloak id, or nil when
// the user is unknown.
func (s *Service) lookupUser(ctx context.Context, q dbtx, keycloakID string) (*PoolUser, error) {
	var user PoolUser
	err := q.QueryRowContext(ctx, `
		SELECT keycloak_id, no_default_access FROM resource_pool_users WHERE keycloak_id = $1
	`, keycloakID).Scan(&user.KeycloakID, &user.NoDefaultAccess)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &user, nil
}
