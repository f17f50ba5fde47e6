package instance

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&SearchInstance{}))
	return db
}

func TestUpsertAssignsID(t *testing.T) {
	repo := NewRepository(newRepoTestDB(t))

	inst := &SearchInstance{URL: "http://searx-1:8080", IsActive: true, HealthStatus: HealthStatusUnknown}
	require.NoError(t, repo.Upsert(context.Background(), inst))
	assert.NotEqual(t, uuid.Nil, inst.ID)
}

func TestUpsertKeepsHealthOnConflict(t *testing.T) {
	db := newRepoTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	inst := &SearchInstance{URL: "http://searx-1:8080", IsActive: true, HealthStatus: HealthStatusUnknown}
	require.NoError(t, repo.Upsert(ctx, inst))
	require.NoError(t, repo.UpdateHealth(ctx, inst.ID, HealthStatusHealthy, 42, time.Now()))

	// Re-registering the same URL updates priority without clobbering the
	// health fields owned by the monitor.
	require.NoError(t, repo.Upsert(ctx, &SearchInstance{
		URL:          "http://searx-1:8080",
		IsActive:     true,
		HealthStatus: HealthStatusUnknown,
		Priority:     5,
	}))

	var stored SearchInstance
	require.NoError(t, db.Where("url = ?", "http://searx-1:8080").First(&stored).Error)
	assert.Equal(t, inst.ID, stored.ID)
	assert.Equal(t, 5, stored.Priority)
	assert.Equal(t, HealthStatusHealthy, stored.HealthStatus)

	var count int64
	require.NoError(t, db.Model(&SearchInstance{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
