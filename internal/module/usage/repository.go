package usage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository defines the interface for usage record data access. Records are
// append-only; nothing in the core updates or deletes individual rows.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	ListRecent(ctx context.Context, accountID string, limit int) ([]*Record, error)
	GetStats(ctx context.Context, accountID string, start, end time.Time) (*Stats, error)
	// DeleteOlderThan prunes records past the retention window. Retention is
	// an operator concern, not part of the billing path.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new usage repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rec *Record) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create usage record: %w", err)
	}
	return nil
}

func (r *repository) ListRecent(ctx context.Context, accountID string, limit int) ([]*Record, error) {
	var records []*Record
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	return records, nil
}

func (r *repository) GetStats(ctx context.Context, accountID string, start, end time.Time) (*Stats, error) {
	var stats Stats
	err := r.db.WithContext(ctx).Model(&Record{}).
		Select(
			"COUNT(*) AS total_requests",
			"COUNT(*) FILTER (WHERE status = 'success') AS success_count",
			"COUNT(*) FILTER (WHERE status = 'error') AS error_count",
			"COALESCE(SUM(credits_charged), 0) AS credits_charged",
		).
		Where("account_id = ? AND created_at >= ? AND created_at < ?", accountID, start, end).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("get usage stats: %w", err)
	}
	return &stats, nil
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune usage records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
