package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog - неизменяемая запись журнала. Только вставка.
type AuditLog struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Action       string         `gorm:"type:varchar(64);not null;index" json:"action"`
	ResourceType string         `gorm:"type:varchar(64);not null" json:"resource_type"`
	ResourceID   string         `gorm:"type:varchar(36);not null;index" json:"resource_id"`
	UserID       string         `gorm:"type:varchar(36)" json:"user_id,omitempty"`
	Data         datatypes.JSON `json:"data,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

const (
	AuditOpenShiftPosted    = "OPEN_SHIFT_POSTED"
	AuditOpenShiftFilled    = "OPEN_SHIFT_FILLED"
	AuditOpenShiftExpired   = "OPEN_SHIFT_EXPIRED"
	AuditOpenShiftCancelled = "OPEN_SHIFT_CANCELLED"
	AuditWindowOpened       = "QUEUE_WINDOW_OPENED"
	AuditWindowExpired      = "QUEUE_WINDOW_EXPIRED"
	AuditOfferAccepted      = "SHIFT_OFFER_ACCEPTED"
	AuditOfferDeclined      = "SHIFT_OFFER_DECLINED"

	ResourceOpenShift  = "open_shift"
	ResourceQueueEntry = "queue_entry"
)

// All - модели для AutoMigrate
func All() []any {
	return []any{
		&Shift{},
		&User{},
		&OpenShiftRequest{},
		&QueueEntry{},
		&NotificationRecord{},
		&ChannelPreference{},
		&AuditLog{},
	}
}
