package payment

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus is the settlement state of a credit purchase.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// CreditPurchase is the settlement record for one external payment. The
// unique external payment ID is the idempotency fence: a payment settles
// credits at most once no matter how many times its event is delivered.
type CreditPurchase struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID         string         `gorm:"size:64;index;not null" json:"account_id"`
	ExternalPaymentID string         `gorm:"size:128;uniqueIndex;not null" json:"external_payment_id"`
	AmountUsdCents    int64          `gorm:"not null" json:"amount_usd_cents"`
	CreditsGranted    int64          `gorm:"not null" json:"credits_granted"`
	DiscountPercent   int            `json:"discount_percent"`
	Status            PurchaseStatus `gorm:"size:16;not null;default:'pending'" json:"status"`
	FailureReason     string         `gorm:"size:256" json:"failure_reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the table name for CreditPurchase.
func (CreditPurchase) TableName() string {
	return "credit_purchases"
}

// SettlementResult describes the outcome of processing one payment event.
type SettlementResult string

const (
	// SettlementApplied means credits were added for this event.
	SettlementApplied SettlementResult = "applied"
	// SettlementAlreadyApplied means the payment had settled before.
	SettlementAlreadyApplied SettlementResult = "already_applied"
	// SettlementRejected means the event failed validation and changed nothing.
	SettlementRejected SettlementResult = "rejected"
)

// SettlementEvent is a provider-neutral view of a payment event.
type SettlementEvent struct {
	ExternalPaymentID string
	AccountID         string
	AmountUsdCents    int64
}
