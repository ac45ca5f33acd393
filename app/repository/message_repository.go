package repository

import (
	"github.com/ManuelReschke/saaskit/app/models"
	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(msg *models.Message) error {
	return r.db.Create(msg).Error
}

func (r *messageRepository) GetByID(id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) GetByIDForDataSource(id, dataSourceID uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.Where("id = ? AND data_source_id = ?", id, dataSourceID).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByDataSource returns the newest limit messages in chronological order.
func (r *messageRepository) ListByDataSource(dataSourceID uint, limit int) ([]models.Message, error) {
	var list []models.Message
	q := r.db.Where("data_source_id = ?", dataSourceID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}
