package apperrors

import (
	"net/http"
)

/*
Фабрики и предопределенные переменные для ошибок домена
"открытые смены / очередь / уведомления".
*/

// ErrNotFound - фабрика для ошибки "не найдено" (404)
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

// ErrConflict - общая фабрика для конфликтов (409)
func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

// ErrInvalidStatus - фабрика для невалидных статусов (400)
func ErrInvalidStatus(domain, message string) *AppError {
	return New(CodeInvalidStatus, domain, message, http.StatusBadRequest)
}

// PersistenceError - хранилище недоступно или отклонило запись.
// Вызывающий код может повторить операцию.
func PersistenceError(err error, message string) *AppError {
	return Wrap(err, CodePersistence, "persistence", message, http.StatusServiceUnavailable).
		WithSeverity(SeverityError)
}

// LockContentionError - блокировка очереди смены занята другим процессом.
// Повторить после паузы.
func LockContentionError(resource string, err error) *AppError {
	return Wrap(err, CodeLockContention, "queue", "Resource is locked, retry later", http.StatusConflict).
		WithDetails(map[string]string{"resource": resource}).
		WithSeverity(SeverityWarning)
}

// ChannelDeliveryError - канал доставки вернул ошибку.
// Фиксируется в записи уведомления, наружу не пробрасывается.
func ChannelDeliveryError(channel string, err error) *AppError {
	return Wrap(err, CodeChannelDelivery, "notification", "Delivery via "+channel+" failed", http.StatusBadGateway).
		WithDetails(map[string]string{"channel": channel}).
		WithSeverity(SeverityWarning)
}

// AuditWriteError - запись журнала аудита не удалась.
// Не прерывает бизнес-операцию.
func AuditWriteError(err error) *AppError {
	return Wrap(err, CodeAuditWrite, "audit", "Failed to write audit log", http.StatusInternalServerError).
		WithSeverity(SeverityWarning)
}

// RateLimitedError - превышен лимит запросов (429)
func RateLimitedError(action string, retryAfterSeconds int64) *AppError {
	return New(CodeRateLimited, "rate_limit", "Too many requests", http.StatusTooManyRequests).
		WithDetails(map[string]any{"action": action, "retry_after_seconds": retryAfterSeconds})
}

// Предопределенные ошибки для errors.Is
var (
	// ErrLockContention - сравнение по коду с LockContentionError
	ErrLockContention = New(CodeLockContention, "queue", "Resource is locked, retry later", http.StatusConflict)

	// ErrOpenShiftExists - для смены уже есть открытый запрос
	ErrOpenShiftExists = New(CodeConflict, "open_shift", "Open shift request already exists for this shift", http.StatusConflict)

	// ErrOfferNotActionable - предложение уже отвечено, истекло или смена закрыта
	ErrOfferNotActionable = New(CodeConflict, "queue", "Offer is no longer actionable", http.StatusConflict)

	// ErrOpenShiftNotOpen - запрос уже в терминальном статусе
	ErrOpenShiftNotOpen = New(CodeInvalidStatus, "open_shift", "Open shift request is not open", http.StatusConflict)
)
