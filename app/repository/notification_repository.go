package repository

import (
	"github.com/ManuelReschke/saaskit/app/models"
	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(n *models.Notification) error {
	return r.db.Create(n).Error
}

func (r *notificationRepository) GetByIDForUser(id, userID uint) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByUser is newest first.
func (r *notificationRepository) ListByUser(userID uint, offset, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *notificationRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *notificationRepository) CountUnread(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkAllRead(userID uint) (int64, error) {
	tx := r.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return tx.RowsAffected, tx.Error
}

// SetRead returns gorm.ErrRecordNotFound when the notification is not the user's.
func (r *notificationRepository) SetRead(id, userID uint, read bool) error {
	n, err := r.GetByIDForUser(id, userID)
	if err != nil {
		return err
	}
	return r.db.Model(n).Update("is_read", read).Error
}
