package dto

import (
	"time"

	"shiftoffer_backend/internal/models"
)

// ---------------- Requests ----------------

type PostOpenShiftRequest struct {
	ShiftID        string `json:"shift_id" validate:"required"`
	RequestedBy    string `json:"requested_by" validate:"-"` // из заголовка
	Reason         string `json:"reason" validate:"omitempty,max=500"`
	UrgencyLevel   int    `json:"urgency_level" validate:"required,min=1,max=5"`
	ExpiresInHours int    `json:"expires_in_hours" validate:"omitempty,min=1,max=720"`
}

type RespondRequest struct {
	Response models.QueueResponseStatus `json:"response" validate:"required,queue-response"`
}

type CancelOpenShiftRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// ---------------- Responses ----------------

type PostOpenShiftResult struct {
	OpenShiftID      string    `json:"open_shift_id"`
	ShiftID          string    `json:"shift_id"`
	QueueSize        int       `json:"queue_size"`
	FirstWindowStart time.Time `json:"first_window_start"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type RespondResult struct {
	Success     bool                       `json:"success"`
	Response    models.QueueResponseStatus `json:"response"`
	OpenShiftID string                     `json:"open_shift_id"`
}

type QueueEntryView struct {
	ID              string                     `json:"id"`
	UserID          string                     `json:"user_id"`
	QueuePosition   int                        `json:"queue_position"`
	WindowStartsAt  time.Time                  `json:"window_starts_at"`
	WindowExpiresAt time.Time                  `json:"window_expires_at"`
	ResponseStatus  models.QueueResponseStatus `json:"response_status"`
	RespondedAt     *time.Time                 `json:"responded_at,omitempty"`
	NotifiedAt      *time.Time                 `json:"notified_at,omitempty"`
}

type QueueStatus struct {
	OpenShiftID  string                 `json:"open_shift_id"`
	Status       models.OpenShiftStatus `json:"status"`
	QueueSize    int                    `json:"queue_size"`
	ActiveWindow []QueueEntryView       `json:"active_window"`
	Queue        []QueueEntryView       `json:"queue"`
	ExpiresAt    time.Time              `json:"expires_at"`
	FilledBy     *string                `json:"filled_by,omitempty"`
}

// ProgressResult - итог одного срабатывания таймера окна
type ProgressResult struct {
	OpenShiftID string                 `json:"open_shift_id"`
	Status      models.OpenShiftStatus `json:"status"`
	Remaining   int                    `json:"remaining"`
	Notified    int                    `json:"notified"`
	Expired     int64                  `json:"expired"`
	Reschedule  bool                   `json:"reschedule"`
}

func NewQueueEntryView(e *models.QueueEntry) QueueEntryView {
	return QueueEntryView{
		ID:              e.ID,
		UserID:          e.UserID,
		QueuePosition:   e.QueuePosition,
		WindowStartsAt:  e.WindowStartsAt,
		WindowExpiresAt: e.WindowExpiresAt,
		ResponseStatus:  e.ResponseStatus,
		RespondedAt:     e.RespondedAt,
		NotifiedAt:      e.NotifiedAt,
	}
}
