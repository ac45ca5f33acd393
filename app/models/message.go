package models

import "time"

const MaxUserMessageLength = 255

// Message is one chat turn against a data source.
type Message struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DataSourceID uint       `gorm:"not null;index" json:"data_source_id"`
	DataSource   DataSource `gorm:"foreignKey:DataSourceID" json:"-"`
	Text         string     `gorm:"type:text;not null" json:"text"`
	IsAI         bool       `gorm:"column:is_ai;default:false" json:"is_ai"`
	SQLQuery     string     `gorm:"column:sql_query;type:text" json:"sql_query,omitempty"`
	Model        string     `gorm:"type:varchar(50);default:''" json:"model,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
