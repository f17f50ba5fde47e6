package payment

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Repository defines credit purchase persistence operations.
type Repository interface {
	Create(ctx context.Context, purchase *CreditPurchase) error
	GetByExternalID(ctx context.Context, externalPaymentID string) (*CreditPurchase, error)
	UpdateStatus(ctx context.Context, purchaseID string, status PurchaseStatus, reason string) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*CreditPurchase, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new purchase repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, purchase *CreditPurchase) error {
	err := r.db.WithContext(ctx).Create(purchase).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicatePurchase
	}
	return err
}

func (r *repository) GetByExternalID(ctx context.Context, externalPaymentID string) (*CreditPurchase, error) {
	var purchase CreditPurchase
	err := r.db.WithContext(ctx).
		Where("external_payment_id = ?", externalPaymentID).
		First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) UpdateStatus(ctx context.Context, purchaseID string, status PurchaseStatus, reason string) error {
	updates := map[string]any{"status": status}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	return r.db.WithContext(ctx).Model(&CreditPurchase{}).
		Where("id = ?", purchaseID).
		Updates(updates).Error
}

func (r *repository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*CreditPurchase, error) {
	var purchases []*CreditPurchase
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&purchases).Error
	return purchases, err
}

// isUniqueViolation matches the duplicate key errors of both the postgres
// driver and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
