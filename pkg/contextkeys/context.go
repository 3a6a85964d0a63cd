package contextkeys

// Используем кастомный тип, чтобы избежать коллизий
type contextKey string

// Ключи значений запроса в context.Context
const (
	RequestIDKey     = contextKey("request_id")
	UserIDKey        = contextKey("user_id")
	CorrelationIDKey = contextKey("correlation_id")
)
