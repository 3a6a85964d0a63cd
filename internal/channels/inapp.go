package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shiftoffer_backend/internal/models"
)

// PresenceChecker - онлайн ли пользователь
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Realtime - публикация в группы пользователя и отдела
type Realtime interface {
	PublishToUser(ctx context.Context, userID string, payload []byte) error
	PublishToDepartment(ctx context.Context, departmentID string, payload []byte) error
}

// PendingQueue - отложенные сообщения до следующего подключения
type PendingQueue interface {
	Push(ctx context.Context, userID string, payload []byte) error
}

// InAppPayload - то, что получает websocket-клиент
type InAppPayload struct {
	Kind             string                  `json:"kind"`
	NotificationID   string                  `json:"notification_id"`
	NotificationType models.NotificationType `json:"notification_type"`
	Subject          string                  `json:"subject"`
	Body             string                  `json:"body"`
	Priority         int                     `json:"priority"`
	Data             map[string]any          `json:"data,omitempty"`
	SentAt           time.Time               `json:"sent_at"`
}

// InAppSender - real-time доставка с учетом присутствия
type InAppSender struct {
	presence PresenceChecker
	realtime Realtime
	pending  PendingQueue
}

func NewInAppSender(presence PresenceChecker, realtime Realtime, pending PendingQueue) *InAppSender {
	return &InAppSender{presence: presence, realtime: realtime, pending: pending}
}

func (s *InAppSender) Channel() models.NotificationChannel { return models.ChannelInApp }

func (s *InAppSender) Deliver(ctx context.Context, r Recipient, m Message) (Result, error) {
	payload, err := json.Marshal(InAppPayload{
		Kind:             "notification",
		NotificationID:   m.NotificationID,
		NotificationType: m.Type,
		Subject:          m.Subject,
		Body:             m.Body,
		Priority:         m.Priority,
		Data:             m.Data,
		SentAt:           time.Now().UTC(),
	})
	if err != nil {
		return result(models.ChannelInApp, StatusFailed), err
	}

	online, err := s.presence.IsOnline(ctx, r.UserID)
	if err != nil {
		return result(models.ChannelInApp, StatusFailed), fmt.Errorf("presence lookup: %w", err)
	}

	if !online {
		if err := s.pending.Push(ctx, r.UserID, payload); err != nil {
			return result(models.ChannelInApp, StatusFailed), fmt.Errorf("pending push: %w", err)
		}
		return result(models.ChannelInApp, StatusQueued), nil
	}

	if err := s.realtime.PublishToUser(ctx, r.UserID, payload); err != nil {
		return result(models.ChannelInApp, StatusFailed), fmt.Errorf("realtime publish: %w", err)
	}
	if m.BroadcastToDepartment && r.DepartmentID != "" {
		if err := s.realtime.PublishToDepartment(ctx, r.DepartmentID, payload); err != nil {
			return result(models.ChannelInApp, StatusFailed), fmt.Errorf("department publish: %w", err)
		}
	}
	return result(models.ChannelInApp, StatusDelivered), nil
}
