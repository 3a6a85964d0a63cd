package middleware

import (
	"github.com/gin-gonic/gin"

	"shiftoffer_backend/internal/logger"
	"shiftoffer_backend/pkg/apperrors"
)

const (
	userIDHeader = "X-User-ID"
	userIDKey    = "userID"
)

// IdentityMiddleware берет личность вызывающего из X-User-ID. Аутентификацию
// выполняет шлюз перед сервисом.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" || len(userID) > 36 {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Missing or invalid "+userIDHeader+" header"))
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// GetUserID извлекает ID пользователя из контекста
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
