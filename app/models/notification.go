package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NotificationTypeSystem  = "system"
	NotificationTypeBilling = "billing"
	NotificationTypeCrawl   = "crawl"
	NotificationTypeChat    = "chat"
)

type Notification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"-" validate:"-"`
	Type      string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=system billing crawl chat"`
	Content   string         `gorm:"type:text" json:"content"`
	Data      datatypes.JSON `json:"data,omitempty"`
	IsRead    bool           `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarkAsRead flips the read flag in place and persists it.
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.IsRead = true
	return db.Model(n).Update("is_read", true).Error
}
