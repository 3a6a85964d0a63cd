package services

// ServiceContainer содержит все сервисы приложения.
type ServiceContainer struct {
	QueueService        QueueService
	NotificationService NotificationService
	PresenceService     PresenceService
	AuditService        AuditService
	ReportService       ReportService
}
