package apperrors

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse - стандартный ответ об ошибке
type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// GinErrorHandler - обработчик ошибок для Gin
type GinErrorHandler struct {
	Debug  bool
	Logger *zap.Logger
}

// HandleGinError - основная логика обработки ошибок для Gin
func (h *GinErrorHandler) HandleGinError(c *gin.Context, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		appErr = InternalError(err)
	}
	if appErr.HTTPCode >= 500 && !h.Debug {
		// В продакшене скрываем детали
		appErr = New(appErr.Code, appErr.Domain, appErr.Message, appErr.HTTPCode)
	}

	LogAtSeverity(h.Logger, "request failed", err,
		zap.String("path", c.FullPath()),
		zap.String("code", string(appErr.Code)),
	)

	c.JSON(appErr.HTTPCode, ErrorResponse{Error: appErr})
}

var defaultHandler = &GinErrorHandler{Debug: gin.Mode() != gin.ReleaseMode}

// HandleError - быстрая функция-помощник для Gin
func HandleError(c *gin.Context, err error) {
	defaultHandler.HandleGinError(c, err)
}

// SetLogger подключает логгер к обработчику по умолчанию
func SetLogger(l *zap.Logger, debug bool) {
	defaultHandler = &GinErrorHandler{Debug: debug, Logger: l}
}

// AsAppError - пытается преобразовать error в *AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// LogAtSeverity пишет ошибку на уровне, соответствующем ее серьезности
func LogAtSeverity(l *zap.Logger, msg string, err error, fields ...zap.Field) {
	if l == nil || err == nil {
		return
	}
	fields = append(fields, zap.Error(err))
	switch SeverityOf(err) {
	case SeverityInfo:
		l.Info(msg, fields...)
	case SeverityWarning:
		l.Warn(msg, fields...)
	case SeverityCritical:
		l.Error(msg, append(fields, zap.Bool("critical", true))...)
	default:
		l.Error(msg, fields...)
	}
}
