package connectors

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/basinhq/basin/pkg/access"
	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
	"github.com/basinhq/basin/pkg/authz"
)

// Service implements data connector management over PostgreSQL.
type Service struct {
	db *sql.DB
	az authz.Authorizer
}

// NewService creates a new connector service.
func NewService(db *sql.DB, az authz.Authorizer) *Service {
	return &Service{db: db, az: az}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || string(pqErr.Code) != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

const connectorColumns = `id, namespace, slug, visibility, description, keywords, storage_type, storage_readonly, created_by, created_at, updated_at, etag`

// Create inserts a new connector owned by the caller.
func (s *Service) Create(ctx context.Context, caller auth.Caller, connector DataConnector) (*DataConnector, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if connector.Namespace == "" || connector.Slug == "" {
		return nil, apperrors.NewValidation("a data connector requires a namespace and a slug")
	}
	if !connector.Visibility.Valid() {
		return nil, apperrors.NewValidation("visibility must be %q or %q", VisibilityPublic, VisibilityPrivate)
	}
	if connector.Storage.Type == "" {
		return nil, apperrors.NewValidation("a data connector requires a storage type")
	}

	connector.ID = uuid.NewString()
	connector.CreatedBy = caller.UserID()
	connector.Etag = computeEtag(&connector)

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO data_connectors (id, namespace, slug, visibility, description, keywords, storage_type, storage_readonly, created_by, etag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, connector.ID, connector.Namespace, connector.Slug, connector.Visibility, connector.Description,
		pq.Array(connector.Keywords), connector.Storage.Type, connector.Storage.Readonly,
		connector.CreatedBy, connector.Etag).Scan(&connector.CreatedAt, &connector.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "data_connectors_namespace_slug_key") {
			return nil, apperrors.NewConflict("a data connector with slug %q already exists in namespace %q", connector.Slug, connector.Namespace)
		}
		return nil, fmt.Errorf("failed to insert data connector: %w", err)
	}
	return &connector, nil
}

// Get returns one connector, masking denials on private rows as not-found.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id string) (*DataConnector, error) {
	connector, err := scanConnector(s.db.QueryRowContext(ctx,
		`SELECT `+connectorColumns+` FROM data_connectors WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewMissingResource("data connector", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data connector: %w", err)
	}

	if connector.Visibility != VisibilityPublic {
		if err := access.RequirePermission(ctx, s.az, caller, "data connector", authz.ResourceTypeDataConnector, id, auth.ScopeRead); err != nil {
			return nil, err
		}
	}
	return connector, nil
}

// List returns public connectors plus those the oracle reports READ on.
func (s *Service) List(ctx context.Context, caller auth.Caller) ([]DataConnector, error) {
	var rows *sql.Rows
	var err error

	switch {
	case caller.IsAdmin:
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+connectorColumns+` FROM data_connectors ORDER BY namespace, slug`)
	case caller.IsAuthenticated:
		var ids []string
		ids, err = s.az.ResourcesWithPermission(ctx, caller, caller.UserID(), authz.ResourceTypeDataConnector, auth.ScopeRead)
		if err != nil {
			return nil, fmt.Errorf("failed to list readable data connectors: %w", err)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+connectorColumns+`
			FROM data_connectors
			WHERE visibility = $1 OR id = ANY($2)
			ORDER BY namespace, slug
		`, VisibilityPublic, pq.Array(ids))
	default:
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+connectorColumns+` FROM data_connectors WHERE visibility = $1 ORDER BY namespace, slug`,
			VisibilityPublic)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list data connectors: %w", err)
	}
	defer rows.Close()

	var result []DataConnector
	for rows.Next() {
		connector, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data connector: %w", err)
		}
		result = append(result, *connector)
	}
	return result, rows.Err()
}

// Update applies a patch under the concurrency gate. Scope is checked before
// the etag so a denied caller learns nothing about the current version.
func (s *Service) Update(ctx context.Context, caller auth.Caller, id, etag string, patch ConnectorPatch) (*DataConnector, error) {
	if patch.Visibility != nil && !patch.Visibility.Valid() {
		return nil, apperrors.NewValidation("visibility must be %q or %q", VisibilityPublic, VisibilityPrivate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	connector, err := scanConnector(tx.QueryRowContext(ctx,
		`SELECT `+connectorColumns+` FROM data_connectors WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewMissingResource("data connector", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data connector: %w", err)
	}

	required := access.RequiredScope(escalationView(connector), patchView(patch))
	if err := access.RequirePermission(ctx, s.az, caller, "data connector", authz.ResourceTypeDataConnector, id, required); err != nil {
		return nil, err
	}
	if err := access.CheckEtag(connector.Etag, etag); err != nil {
		return nil, err
	}

	if patch.Namespace != nil {
		connector.Namespace = *patch.Namespace
	}
	if patch.Slug != nil {
		connector.Slug = *patch.Slug
	}
	if patch.Visibility != nil {
		connector.Visibility = *patch.Visibility
	}
	if patch.Description != nil {
		connector.Description = *patch.Description
	}
	if patch.Keywords != nil {
		connector.Keywords = patch.Keywords
	}
	if patch.StorageType != nil {
		connector.Storage.Type = *patch.StorageType
	}
	if patch.Readonly != nil {
		connector.Storage.Readonly = *patch.Readonly
	}
	connector.Etag = computeEtag(connector)

	err = tx.QueryRowContext(ctx, `
		UPDATE data_connectors
		SET namespace = $1, slug = $2, visibility = $3, description = $4, keywords = $5,
		    storage_type = $6, storage_readonly = $7, etag = $8, updated_at = now()
		WHERE id = $9
		RETURNING updated_at
	`, connector.Namespace, connector.Slug, connector.Visibility, connector.Description,
		pq.Array(connector.Keywords), connector.Storage.Type, connector.Storage.Readonly,
		connector.Etag, id).Scan(&connector.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "data_connectors_namespace_slug_key") {
			return nil, apperrors.NewConflict("a data connector with slug %q already exists in namespace %q", connector.Slug, connector.Namespace)
		}
		return nil, fmt.Errorf("failed to update data connector: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit data connector update: %w", err)
	}
	return connector, nil
}

// Delete removes a connector. DELETE scope is required; denial is masked.
func (s *Service) Delete(ctx context.Context, caller auth.Caller, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM data_connectors WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return apperrors.NewMissingResource("data connector", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load data connector: %w", err)
	}

	if err := access.RequirePermission(ctx, s.az, caller, "data connector", authz.ResourceTypeDataConnector, id, auth.ScopeDelete); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM data_connectors WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete data connector: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit data connector delete: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnector(scanner rowScanner) (*DataConnector, error) {
	var connector DataConnector
	var keywords pq.StringArray
	err := scanner.Scan(&connector.ID, &connector.Namespace, &connector.Slug, &connector.Visibility,
		&connector.Description, &keywords, &connector.Storage.Type, &connector.Storage.Readonly,
		&connector.CreatedBy, &connector.CreatedAt, &connector.UpdatedAt, &connector.Etag)
	if err != nil {
		return nil, err
	}
	connector.Keywords = keywords
	return &connector, nil
}
