package repositories

import "errors"

var (
	ErrOpenShiftNotFound    = errors.New("open shift request not found")
	ErrOpenShiftExists      = errors.New("open shift request already exists for shift")
	ErrQueueEntryNotFound   = errors.New("queue entry not found")
	ErrEntryNotActionable   = errors.New("queue entry is not waiting in an active window")
	ErrQueueAlreadyCreated  = errors.New("queue already materialized for open shift")
	ErrShiftNotFound        = errors.New("shift not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidNotification  = errors.New("invalid notification data")
)

var ErrOpenShiftClosed = errors.New("open shift request is not open")
