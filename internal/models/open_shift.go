package models

import "time"

// OpenShiftRequest - запрос на замену смены, раздаваемый по очереди
type OpenShiftRequest struct {
	BaseModel
	ShiftID      string          `gorm:"type:varchar(36);not null;index" json:"shift_id"`
	RequestedBy  string          `gorm:"type:varchar(36);not null" json:"requested_by"`
	Reason       string          `gorm:"type:text" json:"reason"`
	UrgencyLevel int             `gorm:"not null" json:"urgency_level"`
	PostedAt     time.Time       `gorm:"not null" json:"posted_at"`
	ExpiresAt    time.Time       `gorm:"not null;index" json:"expires_at"`
	FilledAt     *time.Time      `json:"filled_at,omitempty"`
	FilledBy     *string         `gorm:"type:varchar(36)" json:"filled_by,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	Status       OpenShiftStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Shift *Shift `gorm:"foreignKey:ShiftID" json:"shift,omitempty"`
}

func (OpenShiftRequest) TableName() string { return "open_shift_requests" }

// QueueEntry - место пользователя в очереди и его окно ответа
type QueueEntry struct {
	BaseModel
	OpenShiftID     string              `gorm:"type:varchar(36);not null;uniqueIndex:idx_queue_shift_position,priority:1" json:"open_shift_id"`
	UserID          string              `gorm:"type:varchar(36);not null;index" json:"user_id"`
	QueuePosition   int                 `gorm:"not null;uniqueIndex:idx_queue_shift_position,priority:2" json:"queue_position"`
	WindowStartsAt  time.Time           `gorm:"not null;index" json:"window_starts_at"`
	WindowExpiresAt time.Time           `gorm:"not null;index" json:"window_expires_at"`
	ResponseStatus  QueueResponseStatus `gorm:"type:varchar(20);not null;index" json:"response_status"`
	RespondedAt     *time.Time          `json:"responded_at,omitempty"`
	NotifiedAt      *time.Time          `json:"notified_at,omitempty"`
}

func (QueueEntry) TableName() string { return "queue_entries" }

// InActiveWindow - ждет ответа и окно открыто в момент now
func (e *QueueEntry) InActiveWindow(now time.Time) bool {
	return e.ResponseStatus == QueueStatusWaiting &&
		!e.WindowStartsAt.After(now) &&
		e.WindowExpiresAt.After(now)
}

// Shift - смена из расписания (проекция, которой владеет другой сервис)
type Shift struct {
	BaseModel
	DepartmentID string    `gorm:"type:varchar(36);not null;index" json:"department_id"`
	Title        string    `gorm:"not null" json:"title"`
	Location     string    `json:"location"`
	StartsAt     time.Time `gorm:"not null" json:"starts_at"`
	EndsAt       time.Time `gorm:"not null" json:"ends_at"`
}

func (Shift) TableName() string { return "shifts" }
