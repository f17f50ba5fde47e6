package instance

import (
	"time"

	"github.com/google/uuid"
)

// HealthStatus represents the health status of an upstream instance.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// SearchInstance is one upstream meta-search endpoint. Rows are
// operator-managed and long-lived; only the health-check process mutates the
// health fields.
type SearchInstance struct {
	ID                uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	URL               string       `json:"url" gorm:"size:255;uniqueIndex;not null"`
	IsActive          bool         `json:"is_active" gorm:"default:true"`
	HealthStatus      HealthStatus `json:"health_status" gorm:"size:16;default:unknown"`
	Priority          int          `json:"priority" gorm:"default:0"`
	MaxRatePerMinute  int          `json:"max_rate_per_minute" gorm:"default:0"`
	LastHealthCheckAt *time.Time   `json:"last_health_check_at"`
	ResponseTimeMs    int64        `json:"response_time_ms"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// TableName returns the database table name.
func (SearchInstance) TableName() string {
	return "search_instances"
}

// IsEligible reports whether the instance may serve traffic.
func (i *SearchInstance) IsEligible() bool {
	return i.IsActive && i.HealthStatus == HealthStatusHealthy
}
