package database

import (
	"testing"

	"commons/internal/models"
	"commons/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestQueryLatencyObserved(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, RegisterMetricsCallbacks(db))
	require.NoError(t, Migrate(db))

	before := testutil.CollectAndCount(observability.DatabaseQueryLatency)

	require.NoError(t, db.Create(&models.User{Username: "alice"}).Error)
	var users []models.User
	require.NoError(t, db.Find(&users).Error)

	after := testutil.CollectAndCount(observability.DatabaseQueryLatency)
	assert.Greater(t, after, before, "create and query must each record a latency sample")
}
