package dto

import (
	"shiftoffer_backend/internal/channels"
	"shiftoffer_backend/internal/models"
)

// ---------------- Requests ----------------

type SendNotificationRequest struct {
	UserID                string                       `json:"user_id" validate:"required"`
	Type                  models.NotificationType      `json:"type" validate:"required"`
	Channels              []models.NotificationChannel `json:"channels" validate:"omitempty,dive,notification-channel"`
	Priority              int                          `json:"priority" validate:"omitempty,min=1,max=5"`
	Subject               string                       `json:"subject" validate:"omitempty,max=200"`
	Body                  string                       `json:"body" validate:"omitempty,max=4000"`
	Data                  map[string]interface{}       `json:"data"`
	BroadcastToDepartment bool                         `json:"broadcast_to_department"`
}

type SetPreferenceRequest struct {
	Channel models.NotificationChannel `json:"channel" validate:"required,notification-channel"`
	Enabled *bool                      `json:"enabled" validate:"required"`
}

type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		Auth   string `json:"auth" validate:"required"`
		P256dh string `json:"p256dh" validate:"required"`
	} `json:"keys"`
}

// ---------------- Responses ----------------

type SendNotificationResult struct {
	NotificationID string                    `json:"notification_id"`
	Status         models.NotificationStatus `json:"status"`
	Results        []channels.Result         `json:"results"`
}

type PreferenceView struct {
	Channel models.NotificationChannel `json:"channel"`
	Enabled bool                       `json:"enabled"`
}

type DeliveryStats struct {
	Pending           int64 `json:"pending"`
	Sent              int64 `json:"sent"`
	Failed            int64 `json:"failed"`
	PermanentlyFailed int64 `json:"permanently_failed"`
}

type RetryStats struct {
	Scanned   int `json:"scanned"`
	Retried   int `json:"retried"`
	Recovered int `json:"recovered"`
	Exhausted int `json:"exhausted"`
	// Withdrawn - предложения смены, на которые уже нельзя ответить
	Withdrawn int `json:"withdrawn"`
}
