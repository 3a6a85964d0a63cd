package models

type OpenShiftStatus string
type QueueResponseStatus string
type NotificationStatus string
type NotificationChannel string
type NotificationType string
type PresenceStatus string

const (
	OpenShiftStatusOpen      OpenShiftStatus = "open"
	OpenShiftStatusFilled    OpenShiftStatus = "filled"
	OpenShiftStatusExpired   OpenShiftStatus = "expired"
	OpenShiftStatusCancelled OpenShiftStatus = "cancelled"

	QueueStatusWaiting  QueueResponseStatus = "waiting"
	QueueStatusAccepted QueueResponseStatus = "accepted"
	QueueStatusDeclined QueueResponseStatus = "declined"
	QueueStatusExpired  QueueResponseStatus = "expired"

	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"

	ChannelInApp NotificationChannel = "in_app"
	ChannelPush  NotificationChannel = "push"
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"

	NotificationShiftAvailable    NotificationType = "SHIFT_AVAILABLE"
	NotificationShiftAssigned     NotificationType = "SHIFT_ASSIGNED"
	NotificationShiftFilled       NotificationType = "SHIFT_FILLED"
	NotificationShiftCancelled    NotificationType = "SHIFT_CANCELLED"
	NotificationOpenShiftUnfilled NotificationType = "OPEN_SHIFT_UNFILLED"

	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// AllChannels - порядок каналов при рассылке "во все"
var AllChannels = []NotificationChannel{ChannelInApp, ChannelPush, ChannelEmail, ChannelSMS}

func (s OpenShiftStatus) IsTerminal() bool {
	return s != OpenShiftStatusOpen
}

func (c NotificationChannel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelPush, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// DefaultEnabled - настройки канала, если пользователь ничего не выбирал
func (c NotificationChannel) DefaultEnabled() bool {
	return c != ChannelSMS
}
