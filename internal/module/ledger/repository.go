package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for credit balance data access. All
// mutations are single atomic conditional statements so the gateway stays
// correct when run as multiple concurrent processes.
type Repository interface {
	GetBalance(ctx context.Context, accountID string) (*CreditBalance, error)
	// Debit decrements balance by amount only if balance >= amount, and
	// increments total_used by the same amount. Returns
	// ErrInsufficientCredits when the guard fails.
	Debit(ctx context.Context, accountID string, amount int64) error
	// Refund reverses a debit: balance += amount, total_used -= amount.
	Refund(ctx context.Context, accountID string, amount int64) error
	// TopUp increments balance and total_purchased, creating the balance row
	// on first purchase.
	TopUp(ctx context.Context, accountID string, credits int64, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetBalance(ctx context.Context, accountID string) (*CreditBalance, error) {
	var bal CreditBalance
	err := r.db.WithContext(ctx).First(&bal, "account_id = ?", accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &bal, nil
}

func (r *repository) Debit(ctx context.Context, accountID string, amount int64) error {
	res := r.db.WithContext(ctx).Model(&CreditBalance{}).
		Where("account_id = ? AND balance >= ?", accountID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"total_used": gorm.Expr("total_used + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("debit balance: %w", res.Error)
	}
	// Zero rows means either no balance row or balance < amount; both are
	// billing rejections, not storage errors.
	if res.RowsAffected == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

func (r *repository) Refund(ctx context.Context, accountID string, amount int64) error {
	res := r.db.WithContext(ctx).Model(&CreditBalance{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"total_used": gorm.Expr("total_used - ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("refund balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

func (r *repository) TopUp(ctx context.Context, accountID string, credits int64, at time.Time) error {
	bal := &CreditBalance{
		AccountID:      accountID,
		Balance:        credits,
		TotalPurchased: credits,
		LastPurchaseAt: &at,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":          gorm.Expr("balance + ?", credits),
			"total_purchased":  gorm.Expr("total_purchased + ?", credits),
			"last_purchase_at": at,
			"updated_at":       time.Now(),
		}),
	}).Create(bal).Error
	if err != nil {
		return fmt.Errorf("top up balance: %w", err)
	}
	return nil
}
