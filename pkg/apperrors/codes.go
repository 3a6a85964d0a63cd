package apperrors

// ErrorCode - тип для кодов ошибок
type ErrorCode string

const (
	// Системные и неизвестные ошибки
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Общие ошибки бизнес-логики
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeInvalidStatus    ErrorCode = "INVALID_STATUS"

	// Очередь смен и уведомления
	CodePersistence     ErrorCode = "PERSISTENCE_ERROR"
	CodeLockContention  ErrorCode = "LOCK_CONTENTION"
	CodeChannelDelivery ErrorCode = "CHANNEL_DELIVERY_ERROR"
	CodeAuditWrite      ErrorCode = "AUDIT_WRITE_ERROR"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"

	// Аутентификация и Авторизация
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
)
