package handlers

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	OpenShiftHandler    *OpenShiftHandler
	NotificationHandler *NotificationHandler
}
