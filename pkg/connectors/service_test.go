package connectors

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
	"github.com/basinhq/basin/pkg/authz"
)

var connectorTestColumns = []string{
	"id", "namespace", "slug", "visibility", "description", "keywords",
	"storage_type", "storage_readonly", "created_by", "created_at", "updated_at", "etag",
}

func newConnectorTest(t *testing.T) (*Service, sqlmock.Sqlmock, *authz.Static) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	az := authz.NewStatic()
	return NewService(db, az), mock, az
}

func connectorRow(id, namespace, slug string, visibility Visibility, etag string) []driver.Value {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []driver.Value{id, namespace, slug, string(visibility), "", "{}",
		"s3", true, "creator", now, now, etag}
}

func TestCreate_MissingStorageType(t *testing.T) {
	service, mock, _ := newConnectorTest(t)

	_, err := service.Create(context.Background(), auth.NewCaller("user-1"), DataConnector{
		Namespace: "team-a/proj", Slug: "shared-data", Visibility: VisibilityPrivate,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_SlugCollision(t *testing.T) {
	service, mock, _ := newConnectorTest(t)

	mock.ExpectQuery(`INSERT INTO data_connectors`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "data_connectors_namespace_slug_key"})

	_, err := service.Create(context.Background(), auth.NewCaller("user-1"), DataConnector{
		Namespace: "team-a/proj", Slug: "shared-data", Visibility: VisibilityPrivate,
		Storage: Storage{Type: "s3", Readonly: true},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_PrivateMaskedWithoutGrant(t *testing.T) {
	service, mock, _ := newConnectorTest(t)

	mock.ExpectQuery(`SELECT (.+) FROM data_connectors WHERE id`).
		WithArgs("dc-1").
		WillReturnRows(sqlmock.NewRows(connectorTestColumns).
			AddRow(connectorRow("dc-1", "team-a/proj", "shared-data", VisibilityPrivate, "E1")...))

	_, err := service.Get(context.Background(), auth.NewCaller("stranger"), "dc-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingResource(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_AnyReparentingEscalates(t *testing.T) {
	service, mock, az := newConnectorTest(t)
	az.Grant("user-1", authz.ResourceTypeDataConnector, "dc-1", auth.ScopeWrite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM data_connectors WHERE id = \$1 FOR UPDATE`).
		WithArgs("dc-1").
		WillReturnRows(sqlmock.NewRows(connectorTestColumns).
			AddRow(connectorRow("dc-1", "team-a/proj", "shared-data", VisibilityPrivate, "E1")...))
	mock.ExpectRollback()

	// Moving under a sibling of the same root still escalates for
	// connectors because the full parent path is the owner.
	namespace := "team-a/other"
	_, err := service.Update(context.Background(), auth.NewCaller("user-1"), "dc-1", "E1",
		ConnectorPatch{Namespace: &namespace})
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingResource(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_StoragePatchWithWriteScope(t *testing.T) {
	service, mock, az := newConnectorTest(t)
	az.Grant("user-1", authz.ResourceTypeDataConnector, "dc-1", auth.ScopeWrite)

	current := &DataConnector{
		ID: "dc-1", Namespace: "team-a/proj", Slug: "shared-data",
		Visibility: VisibilityPrivate, Storage: Storage{Type: "s3", Readonly: true},
	}
	current.Etag = computeEtag(current)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM data_connectors WHERE id = \$1 FOR UPDATE`).
		WithArgs("dc-1").
		WillReturnRows(sqlmock.NewRows(connectorTestColumns).
			AddRow(connectorRow("dc-1", "team-a/proj", "shared-data", VisibilityPrivate, current.Etag)...))
	mock.ExpectQuery(`UPDATE data_connectors`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	readonly := false
	updated, err := service.Update(context.Background(), auth.NewCaller("user-1"), "dc-1", current.Etag,
		ConnectorPatch{Readonly: &readonly})
	require.NoError(t, err)
	assert.False(t, updated.Storage.Readonly)
	assert.NotEqual(t, current.Etag, updated.Etag)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_StaleEtagAfterScopeCheck(t *testing.T) {
	service, mock, az := newConnectorTest(t)
	az.Grant("user-1", authz.ResourceTypeDataConnector, "dc-1", auth.ScopeWrite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM data_connectors WHERE id = \$1 FOR UPDATE`).
		WithArgs("dc-1").
		WillReturnRows(sqlmock.NewRows(connectorTestColumns).
			AddRow(connectorRow("dc-1", "team-a/proj", "shared-data", VisibilityPrivate, "CURRENT")...))
	mock.ExpectRollback()

	description := "edit"
	_, err := service.Update(context.Background(), auth.NewCaller("user-1"), "dc-1", "STALE",
		ConnectorPatch{Description: &description})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RequiresDeleteScope(t *testing.T) {
	service, mock, az := newConnectorTest(t)
	az.Grant("user-1", authz.ResourceTypeDataConnector, "dc-1", auth.ScopeWrite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM data_connectors WHERE id = \$1 FOR UPDATE`).
		WithArgs("dc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("dc-1"))
	mock.ExpectRollback()

	err := service.Delete(context.Background(), auth.NewCaller("user-1"), "dc-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingResource(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_AdminSeesAll(t *testing.T) {
	service, mock, _ := newConnectorTest(t)

	mock.ExpectQuery(`SELECT (.+) FROM data_connectors ORDER BY`).
		WillReturnRows(sqlmock.NewRows(connectorTestColumns).
			AddRow(connectorRow("dc-1", "team-a/proj", "open", VisibilityPublic, "E1")...).
			AddRow(connectorRow("dc-2", "team-b/proj", "private", VisibilityPrivate, "E2")...))

	result, err := service.List(context.Background(), auth.NewAdmin("root"))
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
