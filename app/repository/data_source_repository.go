package repository

import (
	"github.com/ManuelReschke/saaskit/app/models"
	"gorm.io/gorm"
)

type dataSourceRepository struct {
	db *gorm.DB
}

func NewDataSourceRepository(db *gorm.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

func (r *dataSourceRepository) Create(ds *models.DataSource) error {
	return r.db.Create(ds).Error
}

func (r *dataSourceRepository) GetByID(id uint) (*models.DataSource, error) {
	var ds models.DataSource
	if err := r.db.First(&ds, id).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

// GetByIDForUser returns gorm.ErrRecordNotFound for sources owned by someone else.
func (r *dataSourceRepository) GetByIDForUser(id, userID uint) (*models.DataSource, error) {
	var ds models.DataSource
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&ds).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *dataSourceRepository) ListByUser(userID uint) ([]models.DataSource, error) {
	var list []models.DataSource
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error
	return list, err
}

func (r *dataSourceRepository) Update(ds *models.DataSource) error {
	return r.db.Save(ds).Error
}

// Delete removes the source and its chat history in one transaction.
func (r *dataSourceRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("data_source_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.DataSource{}, id).Error
	})
}
