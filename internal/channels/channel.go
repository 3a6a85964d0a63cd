package channels

import (
	"context"
	"time"

	"shiftoffer_backend/internal/email"
	"shiftoffer_backend/internal/models"
)

// DeliveryStatus - итог доставки по одному каналу
type DeliveryStatus string

const (
	StatusDelivered          DeliveryStatus = "delivered"
	StatusQueued             DeliveryStatus = "queued"
	StatusNoSubscription     DeliveryStatus = "no_subscription"
	StatusDisabled           DeliveryStatus = "disabled"
	StatusFailed             DeliveryStatus = "failed"
	StatusNoEmail            DeliveryStatus = "no_email"
	StatusNoPhone            DeliveryStatus = "no_phone"
	StatusSkippedLowPriority DeliveryStatus = "skipped_low_priority"
)

// Message - отрендеренное уведомление
type Message struct {
	NotificationID        string
	Type                  models.NotificationType
	Priority              int
	Subject               string
	Body                  string
	SMSBody               string
	EmailTemplate         string
	Data                  map[string]any
	BroadcastToDepartment bool
	Invite                *email.ShiftInvite
	CreatedAt             time.Time
}

// Recipient - контакты получателя
type Recipient struct {
	UserID           string
	Name             string
	Email            string
	Phone            string
	DepartmentID     string
	PushSubscription []byte
}

// Result - результат по каналу, хранится в записи уведомления
type Result struct {
	Channel    models.NotificationChannel `json:"channel"`
	Status     DeliveryStatus             `json:"status"`
	ProviderID string                     `json:"provider_id,omitempty"`
	Error      string                     `json:"error,omitempty"`
	AttemptAt  time.Time                  `json:"attempt_at"`
}

// Sender доставляет сообщение по одному каналу.
// Ошибка означает сбой провайдера; пропуски возвращаются статусом.
type Sender interface {
	Channel() models.NotificationChannel
	Deliver(ctx context.Context, r Recipient, m Message) (Result, error)
}

// Prechecker - канал может отказаться от сообщения до проверки настроек
type Prechecker interface {
	Precheck(m Message) (DeliveryStatus, bool)
}

func result(ch models.NotificationChannel, status DeliveryStatus) Result {
	return Result{Channel: ch, Status: status, AttemptAt: time.Now().UTC()}
}

// truncateRunes обрезает строку до n символов (не байт)
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
