package usage

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Status is the terminal state of a recorded attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Record is one append-only usage row. It is written exactly once per search
// attempt, success or failure, independently of whether credits were charged.
type Record struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID      string         `json:"account_id" gorm:"size:64;index;not null"`
	EngineLabel    string         `json:"engine_label" gorm:"size:255"`
	Engines        pq.StringArray `json:"engines" gorm:"type:text[]"`
	Query          string         `json:"query" gorm:"size:500"`
	ResultsCount   int            `json:"results_count"`
	Status         Status         `json:"status" gorm:"size:16;not null"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	CreditsCharged int64          `json:"credits_charged"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
}

// TableName returns the database table name.
func (Record) TableName() string {
	return "usage_records"
}

// Stats aggregates usage over a period.
type Stats struct {
	TotalRequests  int64 `json:"total_requests"`
	SuccessCount   int64 `json:"success_count"`
	ErrorCount     int64 `json:"error_count"`
	CreditsCharged int64 `json:"credits_charged"`
}
