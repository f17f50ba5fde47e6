package instance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for search instance data access.
type Repository interface {
	ListActive(ctx context.Context) ([]*SearchInstance, error)
	UpdateHealth(ctx context.Context, id uuid.UUID, status HealthStatus, responseTimeMs int64, checkedAt time.Time) error
	// Upsert registers an instance by URL, used for operator seeding.
	Upsert(ctx context.Context, inst *SearchInstance) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new instance repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActive(ctx context.Context) ([]*SearchInstance, error) {
	var instances []*SearchInstance
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority DESC").
		Find(&instances).Error
	if err != nil {
		return nil, fmt.Errorf("list active instances: %w", err)
	}
	return instances, nil
}

func (r *repository) UpdateHealth(ctx context.Context, id uuid.UUID, status HealthStatus, responseTimeMs int64, checkedAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&SearchInstance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"health_status":        status,
			"response_time_ms":     responseTimeMs,
			"last_health_check_at": checkedAt,
			"updated_at":           time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update instance health: %w", err)
	}
	return nil
}

func (r *repository) Upsert(ctx context.Context, inst *SearchInstance) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_active", "priority", "max_rate_per_minute", "updated_at",
		}),
	}).Create(inst).Error
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}
	return nil
}
