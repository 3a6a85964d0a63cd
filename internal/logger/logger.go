package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base *zap.Logger
	mu   sync.Mutex
)

// Init инициализирует глобальный логгер
// env: "development" или "production"
func Init(env string) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	var cfg zap.Config
	if env == "development" {
		// Development: читаемый консольный формат
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		// Production: JSON формат для парсинга
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// конфиг статический, но на всякий случай не падаем без логов
		l = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			zap.InfoLevel,
		))
	}

	base = l
	zap.ReplaceGlobals(l)
	return l
}

// GetLogger возвращает глобальный логгер
func GetLogger() *zap.Logger {
	if base == nil {
		// Fallback если Init не вызван
		Init("development")
	}
	return base
}

// Named возвращает логгер компонента без смещения caller'а.
// Его передают в сервисы и воркеры через конструкторы.
func Named(component string) *zap.Logger {
	return GetLogger().WithOptions(zap.AddCallerSkip(-1)).Named(component)
}

// Sync сбрасывает буферы, вызывается при остановке
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}

// ============================================
// Convenience функции для быстрого логирования
// ============================================

// Debug логирует debug сообщение
func Debug(msg string, kv ...any) {
	GetLogger().Sugar().Debugw(msg, kv...)
}

// Info логирует info сообщение
func Info(msg string, kv ...any) {
	GetLogger().Sugar().Infow(msg, kv...)
}

// Warn логирует warning сообщение
func Warn(msg string, kv ...any) {
	GetLogger().Sugar().Warnw(msg, kv...)
}

// Error логирует error сообщение
func Error(msg string, kv ...any) {
	GetLogger().Sugar().Errorw(msg, kv...)
}

// Fatal логирует fatal ошибку и завершает программу
func Fatal(msg string, kv ...any) {
	GetLogger().Sugar().Fatalw(msg, kv...)
}

// With создает новый логгер с дополнительными полями
// Пример: logger.With("user_id", id).Info("offer accepted")
func With(kv ...any) *zap.SugaredLogger {
	return GetLogger().Sugar().With(kv...)
}

// WithError создает логгер с полем error
func WithError(err error) *zap.Logger {
	return GetLogger().With(zap.Error(err))
}

// ============================================
// Специализированные логгеры
// ============================================

// HTTPLog логирует HTTP запрос
func HTTPLog(method, path string, status int, duration time.Duration, size int, requestID string) {
	GetLogger().Info("http request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.Int("size_bytes", size),
		zap.String("request_id", requestID),
	)
}

// WorkerLog логирует background worker операцию
func WorkerLog(worker, operation string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("worker", worker), zap.String("operation", operation))
	if err != nil {
		GetLogger().Error("worker operation failed", append(fields, zap.Error(err))...)
		return
	}
	GetLogger().Debug("worker operation completed", fields...)
}

// HashPHI возвращает короткий отпечаток персональных данных (email, телефон)
// для логов вместо самого значения.
func HashPHI(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:6])
}

// PHI - поле zap с хэшем персональных данных
func PHI(key, value string) zap.Field {
	return zap.String(key+"_hash", HashPHI(value))
}
