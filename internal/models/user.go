package models

import "gorm.io/datatypes"

// User - сотрудник (проекция с контактами для доставки уведомлений)
type User struct {
	BaseModel
	Name             string         `gorm:"not null" json:"name"`
	Email            string         `gorm:"index" json:"-"`
	Phone            string         `json:"-"`
	DepartmentID     string         `gorm:"type:varchar(36);index" json:"department_id"`
	IsActive         bool           `gorm:"not null;default:true" json:"is_active"`
	PushSubscription datatypes.JSON `json:"-"` // {"endpoint": "...", "keys": {"auth": "...", "p256dh": "..."}}
}

func (User) TableName() string { return "users" }

// ChannelPreference - включен ли канал для пользователя
type ChannelPreference struct {
	BaseModel
	UserID  string              `gorm:"type:varchar(36);not null;uniqueIndex:idx_pref_user_channel,priority:1" json:"user_id"`
	Channel NotificationChannel `gorm:"type:varchar(20);not null;uniqueIndex:idx_pref_user_channel,priority:2" json:"channel"`
	Enabled bool                `gorm:"not null" json:"enabled"`
}

func (ChannelPreference) TableName() string { return "channel_preferences" }
