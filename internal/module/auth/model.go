package auth

import (
	"time"

	"github.com/google/uuid"
)

// ApiCredential is a hashed API key bound to a billing account. The raw key
// is shown once at creation and only its SHA-256 hash is stored.
type ApiCredential struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID  string     `gorm:"size:64;index;not null" json:"account_id"`
	KeyHash    string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	KeyPrefix  string     `gorm:"size:16;not null" json:"key_prefix"`
	Name       string     `gorm:"size:128" json:"name"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the table name for ApiCredential.
func (ApiCredential) TableName() string {
	return "api_credentials"
}
