package repository

import (
	"github.com/ManuelReschke/saaskit/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type providerAccountRepository struct {
	db *gorm.DB
}

func NewProviderAccountRepository(db *gorm.DB) ProviderAccountRepository {
	return &providerAccountRepository{db: db}
}

func (r *providerAccountRepository) GetByProviderUserID(provider, providerUserID string) (*models.ProviderAccount, error) {
	var pa models.ProviderAccount
	err := r.db.Where("provider = ? AND provider_user_id = ?", provider, providerUserID).First(&pa).Error
	if err != nil {
		return nil, err
	}
	return &pa, nil
}

// Upsert refreshes tokens when the identity is already linked.
func (r *providerAccountRepository) Upsert(account *models.ProviderAccount) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "provider_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"access_token",
			"refresh_token",
			"expires_at",
			"updated_at",
		}),
	}).Create(account).Error
}

func (r *providerAccountRepository) ListByUser(userID uint) ([]models.ProviderAccount, error) {
	var list []models.ProviderAccount
	err := r.db.Where("user_id = ?", userID).Order("provider").Find(&list).Error
	return list, err
}
