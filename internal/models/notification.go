package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationRecord - одна рассылка по набору каналов
type NotificationRecord struct {
	BaseModel
	UserID         string             `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Type           NotificationType   `gorm:"type:varchar(40);not null" json:"type"`
	Channels       datatypes.JSON     `json:"channels"` // ["in_app","email"]
	Priority       int                `gorm:"not null" json:"priority"`
	Subject        string             `json:"subject"`
	Body           string             `gorm:"type:text" json:"body"`
	Data           datatypes.JSON     `json:"data,omitempty"`
	Status         NotificationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	RetryCount     int                `gorm:"not null;default:0;index" json:"retry_count"`
	ChannelResults datatypes.JSON     `json:"channel_results,omitempty"` // {"email": {"status": "failed", ...}}
	LastError      string             `gorm:"type:text" json:"last_error,omitempty"`
	LastAttemptAt  *time.Time         `json:"last_attempt_at,omitempty"`
}

func (NotificationRecord) TableName() string { return "notification_records" }
