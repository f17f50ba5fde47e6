package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository defines credential persistence operations.
type Repository interface {
	Create(ctx context.Context, cred *ApiCredential) error
	FindByKeyHash(ctx context.Context, keyHash string) (*ApiCredential, error)
	TouchLastUsed(ctx context.Context, credID string, at time.Time) error
	ListByAccount(ctx context.Context, accountID string) ([]*ApiCredential, error)
	Deactivate(ctx context.Context, credID string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a new credential repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, cred *ApiCredential) error {
	return r.db.WithContext(ctx).Create(cred).Error
}

func (r *gormRepository) FindByKeyHash(ctx context.Context, keyHash string) (*ApiCredential, error) {
	var cred ApiCredential
	err := r.db.WithContext(ctx).Where("key_hash = ?", keyHash).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *gormRepository) TouchLastUsed(ctx context.Context, credID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&ApiCredential{}).
		Where("id = ?", credID).
		Update("last_used_at", at).Error
}

func (r *gormRepository) ListByAccount(ctx context.Context, accountID string) ([]*ApiCredential, error) {
	var creds []*ApiCredential
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&creds).Error
	return creds, err
}

func (r *gormRepository) Deactivate(ctx context.Context, credID string) error {
	return r.db.WithContext(ctx).Model(&ApiCredential{}).
		Where("id = ?", credID).
		Update("is_active", false).Error
}
