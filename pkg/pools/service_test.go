package pools

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basinhq/basin/pkg/apperrors"
	"github.com/basinhq/basin/pkg/auth"
)

var poolColumns = []string{"id", "name", "default", "public", "quota_cpu", "quota_memory", "quota_gpu", "quota_storage"}

var classColumns = []string{"id", "pool_id", "name", "cpu", "memory", "gpu", "max_storage", "default_storage", "default", "node_affinities", "tolerations"}

func newServiceTest(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db), mock
}

func TestCreatePool_SecondDefaultRejected(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM resource_pools WHERE "default"\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := service.CreatePool(context.Background(), auth.NewAdmin("root"), ResourcePool{Name: "P2", Default: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "there can only be one default resource pool and one already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePool_Success(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM resource_pools WHERE "default"\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO resource_pools`).
		WithArgs("P1", true, true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`INSERT INTO resource_classes`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectCommit()

	pool, err := service.CreatePool(context.Background(), auth.NewAdmin("root"), ResourcePool{
		Name:    "P1",
		Default: true,
		Public:  true,
		Quota:   &Quota{CPU: 100, Memory: 100, GPU: 0},
		Classes: []ResourceClass{{Name: "c1", CPU: 1, Memory: 10, MaxStorage: 100, Default: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pool.ID)
	assert.Equal(t, int64(10), pool.Classes[0].ID)
	assert.Equal(t, int64(1), pool.Classes[0].PoolID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePool_NonAdmin(t *testing.T) {
	service, mock := newServiceTest(t)

	_, err := service.CreatePool(context.Background(), auth.NewCaller("user-1"), ResourcePool{Name: "P1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "no state should be read before the admin gate")
}

func TestCreatePool_Anonymous(t *testing.T) {
	service, mock := newServiceTest(t)

	_, err := service.CreatePool(context.Background(), auth.Anonymous(), ResourcePool{Name: "P1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePool_TwoDefaultClassesRejected(t *testing.T) {
	service, mock := newServiceTest(t)

	_, err := service.CreatePool(context.Background(), auth.NewAdmin("root"), ResourcePool{
		Name: "P1",
		Classes: []ResourceClass{
			{Name: "c1", Default: true},
			{Name: "c2", Default: true},
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePool_DefaultRejected(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM resource_pools rp`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(poolColumns).AddRow(int64(1), "P1", true, true, 100.0, int64(100), int64(0), nil))
	mock.ExpectRollback()

	_, err := service.DeletePool(context.Background(), auth.NewAdmin("root"), 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "the default resource pool cannot be deleted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePool_MissingIsNoOp(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM resource_pools rp`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	prior, err := service.DeletePool(context.Background(), auth.NewAdmin("root"), 42)
	require.NoError(t, err)
	assert.Nil(t, prior)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePool_ReturnsPriorState(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM resource_pools rp`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(poolColumns).AddRow(int64(2), "P2", false, false, nil, nil, nil, nil))
	mock.ExpectQuery(`SELECT (.+) FROM resource_classes`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(classColumns).
			AddRow(int64(20), int64(2), "c1", 1.0, int64(10), int64(0), int64(100), int64(50), false, []byte("[]"), []byte("[]")))
	mock.ExpectExec(`DELETE FROM resource_pools WHERE id`).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	prior, err := service.DeletePool(context.Background(), auth.NewAdmin("root"), 2)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, "P2", prior.Name)
	require.Len(t, prior.Classes, 1)
	assert.Equal(t, "c1", prior.Classes[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClass_PoolMissing(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM resource_pools WHERE id`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := service.CreateClass(context.Background(), auth.NewAdmin("root"), 9, ResourceClass{Name: "c1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingResource(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClass_SecondDefaultRejected(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM resource_pools WHERE id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM resource_classes WHERE pool_id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := service.CreateClass(context.Background(), auth.NewAdmin("root"), 1, ResourceClass{Name: "c2", Default: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "there can only be one default resource class per resource pool")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClass_NonDefaultRejected(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM resource_classes`).
		WithArgs(int64(20), int64(1)).
		WillReturnRows(sqlmock.NewRows(classColumns).
			AddRow(int64(20), int64(1), "c2", 2.0, int64(20), int64(0), int64(200), int64(50), false, []byte("[]"), []byte("[]")))
	mock.ExpectRollback()

	name := "renamed"
	_, err := service.UpdateClass(context.Background(), auth.NewAdmin("root"), 1, 20, ClassPatch{Name: &name})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "only the default resource class can be updated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClass_MergesNodeAffinities(t *testing.T) {
	service, mock := newServiceTest(t)

	existing := []byte(`[{"key":"gpu-node","required_during_scheduling":false}]`)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM resource_classes`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(sqlmock.NewRows(classColumns).
			AddRow(int64(10), int64(1), "c1", 1.0, int64(10), int64(0), int64(100), int64(50), true, existing, []byte("[]")))
	mock.ExpectExec(`UPDATE resource_classes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := service.UpdateClass(context.Background(), auth.NewAdmin("root"), 1, 10, ClassPatch{
		NodeAffinities: []NodeAffinity{
			{Key: "gpu-node", RequiredDuringScheduling: true},
			{Key: "ssd", RequiredDuringScheduling: false},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.NodeAffinities, 2)
	assert.True(t, updated.NodeAffinities[0].RequiredDuringScheduling)
	assert.Equal(t, "ssd", updated.NodeAffinities[1].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteClass_DefaultRejected(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM resource_classes`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(sqlmock.NewRows(classColumns).
			AddRow(int64(10), int64(1), "c1", 1.0, int64(10), int64(0), int64(100), int64(50), true, []byte("[]"), []byte("[]")))
	mock.ExpectRollback()

	err := service.DeleteClass(context.Background(), auth.NewAdmin("root"), 1, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "the default resource class cannot be deleted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePool_QuotaPatch(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM resource_pools rp`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(poolColumns).AddRow(int64(1), "P1", true, true, 100.0, int64(100), int64(0), nil))
	mock.ExpectExec(`UPDATE resource_pools SET quota_cpu`).
		WithArgs(1000.0, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM resource_classes`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(classColumns))
	mock.ExpectCommit()

	cpu := 1000.0
	updated, err := service.UpdatePool(context.Background(), auth.NewAdmin("root"), 1, PoolPatch{Quota: &QuotaPatch{CPU: &cpu}})
	require.NoError(t, err)
	require.NotNil(t, updated.Quota)
	assert.Equal(t, 1000.0, updated.Quota.CPU)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePool_NonAdmin(t *testing.T) {
	service, mock := newServiceTest(t)

	name := "renamed"
	_, err := service.UpdatePool(context.Background(), auth.NewCaller("user-1"), 1, PoolPatch{Name: &name})
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPool_NotVisible(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectQuery(`SELECT (.+) FROM resource_pools rp`).
		WithArgs(int64(1), "user-1").
		WillReturnError(sql.ErrNoRows)

	_, err := service.GetPool(context.Background(), auth.NewCaller("user-1"), 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingResource(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPools_UnauthenticatedPublicOnly(t *testing.T) {
	service, mock := newServiceTest(t)

	mock.ExpectQuery(`SELECT (.+) FROM resource_pools rp\s+WHERE rp.public`).
		WillReturnRows(sqlmock.NewRows(poolColumns).AddRow(int64(1), "P1", true, true, 100.0, int64(100), int64(0), nil))
	mock.ExpectQuery(`SELECT (.+) FROM resource_classes`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(classColumns))

	result, err := service.ListPools(context.Background(), auth.Anonymous(), nil)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "P1", result[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPools_NonAdminForeignScope(t *testing.T) {
	service, mock := newServiceTest(t)

	other := "user-2"
	mock.ExpectQuery(`SELECT keycloak_id, no_default_access FROM resource_pool_users`).
		WithArgs(other).
		WillReturnRows(sqlmock.NewRows([]string{"keycloak_id", "no_default_access"}).AddRow(other, false))

	_, err := service.ListPools(context.Background(), auth.NewCaller("user-1"), &other)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
