package projects

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

// Service implements project management over PostgreSQL. Per-resource
// authorization goes through the oracle; denials on a known id are masked
// as not-found.
type Service struct {
	db *sql.DB
	az authz.Authorizer
}

// NewService creates a new project service.
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

const projectColumns = `id, namespace, slug, visibility, description, keywords, created_by, created_at, updated_at, etag`

// Create inserts a new project owned by the caller. Slug collisions within
// a namespace surface as ConflictError.
func (s *Service) Create(ctx context.Context, caller auth.Caller, project Project) (*Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if project.Namespace == "" || project.Slug == "" {
		return nil, apperrors.NewValidation("a project requires a namespace and a slug")
	}
	if !project.Visibility.Valid() {
		return nil, apperrors.NewValidation("visibility must be %q or %q", VisibilityPublic, VisibilityPrivate)
	}

	project.ID = uuid.NewString()
	project.CreatedBy = caller.UserID()
	project.Etag = computeEtag(&project)

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, namespace, slug, visibility, description, keywords, created_by, etag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, project.ID, project.Namespace, project.Slug, project.Visibility, project.Description,
		pq.Array(project.Keywords), project.CreatedBy, project.Etag).Scan(&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "projects_namespace_slug_key") {
			return nil, apperrors.NewConflict("a project with slug %q already exists in namespace %q", project.Slug, project.Namespace)
		}
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	return &project, nil
}

// Get returns one project. Private projects require READ from the oracle;
// a denial is indistinguishable from a missing project.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id string) (*Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewMissingResource("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if project.Visibility != VisibilityPublic {
		if err := access.RequirePermission(ctx, s.az, caller, "project", authz.ResourceTypeProject, id, auth.ScopeRead); err != nil {
			return nil, err
		}
	}
	return project, nil
}

// List returns the projects the caller can see: public rows plus the ids the
// oracle reports READ on. Admins see everything.
func (s *Service) List(ctx context.Context, caller auth.Caller) ([]Project, error) {
	var rows *sql.Rows
	var err error

	switch {
	case caller.IsAdmin:
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+projectColumns+` FROM projects ORDER BY namespace, slug`)
	case caller.IsAuthenticated:
		var ids []string
		ids, err = s.az.ResourcesWithPermission(ctx, caller, caller.UserID(), authz.ResourceTypeProject, auth.ScopeRead)
		if err != nil {
			return nil, fmt.Errorf("failed to list readable projects: %w", err)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+projectColumns+`
			FROM projects
			WHERE visibility = $1 OR id = ANY($2)
			ORDER BY namespace, slug
		`, VisibilityPublic, pq.Array(ids))
	default:
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+projectColumns+` FROM projects WHERE visibility = $1 ORDER BY namespace, slug`,
			VisibilityPublic)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var result []Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, *project)
	}
	return result, rows.Err()
}

// Update applies a patch under the optimistic concurrency gate. The row is
// locked first, then the escalated scope is checked (denial masked as
// not-found), then the etag, and only then is the patch applied.
func (s *Service) Update(ctx context.Context, caller auth.Caller, id, etag string, patch ProjectPatch) (*Project, error) {
	if patch.Visibility != nil && !patch.Visibility.Valid() {
		return nil, apperrors.NewValidation("visibility must be %q or %q", VisibilityPublic, VisibilityPrivate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	project, err := scanProject(tx.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewMissingResource("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	required := access.RequiredScope(escalationView(project), patchView(patch))
	if err := access.RequirePermission(ctx, s.az, caller, "project", authz.ResourceTypeProject, id, required); err != nil {
		return nil, err
	}
	if err := access.CheckEtag(project.Etag, etag); err != nil {
		return nil, err
	}

	if patch.Namespace != nil {
		project.Namespace = *patch.Namespace
	}
	if patch.Slug != nil {
		project.Slug = *patch.Slug
	}
	if patch.Visibility != nil {
		project.Visibility = *patch.Visibility
	}
	if patch.Description != nil {
		project.Description = *patch.Description
	}
	if patch.Keywords != nil {
		project.Keywords = patch.Keywords
	}
	project.Etag = computeEtag(project)

	err = tx.QueryRowContext(ctx, `
		UPDATE projects
		SET namespace = $1, slug = $2, visibility = $3, description = $4, keywords = $5,
		    etag = $6, updated_at = now()
		WHERE id = $7
		RETURNING updated_at
	`, project.Namespace, project.Slug, project.Visibility, project.Description,
		pq.Array(project.Keywords), project.Etag, id).Scan(&project.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "projects_namespace_slug_key") {
			return nil, apperrors.NewConflict("a project with slug %q already exists in namespace %q", project.Slug, project.Namespace)
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project update: %w", err)
	}
	return project, nil
}

// Delete removes a project. DELETE scope is required; a denial is masked as
// not-found.
func (s *Service) Delete(ctx context.Context, caller auth.Caller, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return apperrors.NewMissingResource("project", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	if err := access.RequirePermission(ctx, s.az, caller, "project", authz.ResourceTypeProject, id, auth.ScopeDelete); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project delete: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(scanner rowScanner) (*Project, error) {
	var project Project
	var keywords pq.StringArray
	err := scanner.Scan(&project.ID, &project.Namespace, &project.Slug, &project.Visibility,
		&project.Description, &keywords, &project.CreatedBy,
		&project.CreatedAt, &project.UpdatedAt, &project.Etag)
	if err != nil {
		return nil, err
	}
	project.Keywords = keywords
	return &project, nil
}
