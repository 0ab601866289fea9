package postgres

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basinhq/basin/pkg/observability"
)

func TestUpdatePoolMetrics(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	UpdatePoolMetrics(db, metrics)

	// sqlmock keeps a single idle connection open.
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.DBConnectionsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DBConnectionsIdle))
}
