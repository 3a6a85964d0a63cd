package events

import (
	"time"

	"shiftoffer_backend/internal/models"
)

// Type - имя доменного события (используется и как routing key)
type Type string

const (
	TypeOfferPosted   Type = "offer_posted"
	TypeWindowOpened  Type = "window_opened"
	TypeOfferAccepted Type = "offer_accepted"
	TypeOfferDeclined Type = "offer_declined"
	TypeWindowExpired Type = "window_expired"
	TypeShiftClosed   Type = "shift_closed"
)

// Event - событие жизненного цикла открытой смены
type Event interface {
	EventType() Type
	ShiftRef() string
	At() time.Time
}

type OfferPosted struct {
	OpenShiftID  string    `json:"open_shift_id"`
	ShiftID      string    `json:"shift_id"`
	RequestedBy  string    `json:"requested_by"`
	UrgencyLevel int       `json:"urgency_level"`
	QueueSize    int       `json:"queue_size"`
	ExpiresAt    time.Time `json:"expires_at"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type WindowOpened struct {
	OpenShiftID string    `json:"open_shift_id"`
	EntryIDs    []string  `json:"entry_ids"`
	UserIDs     []string  `json:"user_ids"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type OfferAccepted struct {
	OpenShiftID  string    `json:"open_shift_id"`
	QueueEntryID string    `json:"queue_entry_id"`
	UserID       string    `json:"user_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type OfferDeclined struct {
	OpenShiftID  string    `json:"open_shift_id"`
	QueueEntryID string    `json:"queue_entry_id"`
	UserID       string    `json:"user_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type WindowExpired struct {
	OpenShiftID string    `json:"open_shift_id"`
	EntryIDs    []string  `json:"entry_ids"`
	UserIDs     []string  `json:"user_ids"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ShiftClosed - запрос перешел в терминальный статус
type ShiftClosed struct {
	OpenShiftID string                 `json:"open_shift_id"`
	ShiftID     string                 `json:"shift_id"`
	RequestedBy string                 `json:"requested_by"`
	Status      models.OpenShiftStatus `json:"status"`
	FilledBy    string                 `json:"filled_by,omitempty"`
	Reason      string                 `json:"reason,omitempty"` // queue_exhausted, elapsed, cancelled
	ClosedBy    string                 `json:"closed_by,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

func (e OfferPosted) EventType() Type   { return TypeOfferPosted }
func (e WindowOpened) EventType() Type  { return TypeWindowOpened }
func (e OfferAccepted) EventType() Type { return TypeOfferAccepted }
func (e OfferDeclined) EventType() Type { return TypeOfferDeclined }
func (e WindowExpired) EventType() Type { return TypeWindowExpired }
func (e ShiftClosed) EventType() Type   { return TypeShiftClosed }

func (e OfferPosted) ShiftRef() string   { return e.OpenShiftID }
func (e WindowOpened) ShiftRef() string  { return e.OpenShiftID }
func (e OfferAccepted) ShiftRef() string { return e.OpenShiftID }
func (e OfferDeclined) ShiftRef() string { return e.OpenShiftID }
func (e WindowExpired) ShiftRef() string { return e.OpenShiftID }
func (e ShiftClosed) ShiftRef() string   { return e.OpenShiftID }

func (e OfferPosted) At() time.Time   { return e.OccurredAt }
func (e WindowOpened) At() time.Time  { return e.OccurredAt }
func (e OfferAccepted) At() time.Time { return e.OccurredAt }
func (e OfferDeclined) At() time.Time { return e.OccurredAt }
func (e WindowExpired) At() time.Time { return e.OccurredAt }
func (e ShiftClosed) At() time.Time   { return e.OccurredAt }
