package usage

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestRecorder(t *testing.T) (*Recorder, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Record{}))

	return NewRecorder(NewRepository(db), zap.NewNop()), db
}

func TestRecordLabelsEngines(t *testing.T) {
	recorder, db := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, recorder.Record(ctx, Attempt{
		AccountID:      "acct-1",
		Query:          "golang",
		Engines:        []string{"google", "duckduckgo"},
		ResultsCount:   7,
		Status:         StatusSuccess,
		ResponseTimeMs: 240,
		CreditsCharged: 3,
	}))
	require.NoError(t, recorder.Record(ctx, Attempt{
		AccountID: "acct-1",
		Query:     "weather",
		Status:    StatusError,
	}))

	var records []*Record
	require.NoError(t, db.Order("created_at").Find(&records).Error)
	require.Len(t, records, 2)
	assert.Equal(t, "google,duckduckgo", records[0].EngineLabel)
	assert.Equal(t, "default", records[1].EngineLabel)
	assert.Equal(t, int64(3), records[0].CreditsCharged)
}

func TestListRecentClampsLimit(t *testing.T) {
	recorder, _ := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, recorder.Record(ctx, Attempt{
			AccountID: "acct-1",
			Query:     "q",
			Status:    StatusSuccess,
		}))
	}

	records, err := recorder.ListRecent(ctx, "acct-1", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	// Zero and oversized limits fall back to the default.
	records, err = recorder.ListRecent(ctx, "acct-1", 0)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestStatsAggregatesByStatus(t *testing.T) {
	recorder, _ := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, recorder.Record(ctx, Attempt{
			AccountID:      "acct-1",
			Query:          "q",
			Status:         StatusSuccess,
			CreditsCharged: 2,
		}))
	}
	require.NoError(t, recorder.Record(ctx, Attempt{
		AccountID: "acct-1",
		Query:     "q",
		Status:    StatusError,
	}))

	stats, err := recorder.Stats(ctx, "acct-1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.SuccessCount)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Equal(t, int64(6), stats.CreditsCharged)
}

func TestRetentionPrunesOldRecords(t *testing.T) {
	recorder, db := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, recorder.Record(ctx, Attempt{AccountID: "acct-1", Query: "fresh", Status: StatusSuccess}))
	require.NoError(t, recorder.Record(ctx, Attempt{AccountID: "acct-1", Query: "stale", Status: StatusSuccess}))
	require.NoError(t, db.Model(&Record{}).
		Where("query = ?", "stale").
		Update("created_at", time.Now().UTC().Add(-100*24*time.Hour)).Error)

	deleted, err := recorder.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, db.Model(&Record{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
