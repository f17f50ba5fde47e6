package ledger

import "time"

// CreditBalance is the prepaid balance row for one account. It is mutated
// only through the ledger repository, always via atomic conditional updates;
// at any quiescent point Balance = TotalPurchased - TotalUsed.
type CreditBalance struct {
	AccountID      string    `json:"account_id" gorm:"primaryKey;size:64"`
	Balance        int64     `json:"balance" gorm:"not null;default:0"`
	TotalPurchased int64     `json:"total_purchased" gorm:"not null;default:0"`
	TotalUsed      int64     `json:"total_used" gorm:"not null;default:0"`
	LastPurchaseAt *time.Time `json:"last_purchase_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (CreditBalance) TableName() string {
	return "credit_balances"
}
