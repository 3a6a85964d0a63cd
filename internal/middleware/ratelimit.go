package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/cache"
	"shiftoffer_backend/internal/logger"
	"shiftoffer_backend/pkg/apperrors"
)

// RateLimiter - cache.RateLimiter
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID, action string, limit int64, window time.Duration) (cache.RateLimitResult, error)
}

// RateLimitMiddleware ограничивает действие на пользователя фиксированным окном.
// Если redis недоступен, запрос пропускается.
func RateLimitMiddleware(limiter RateLimiter, action string, limit int64, window time.Duration, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			userID = c.ClientIP()
		}

		res, err := limiter.CheckRateLimit(c.Request.Context(), userID, action, limit, window)
		if err != nil {
			logger.FromContext(c.Request.Context(), l).Warn("rate limiter unavailable",
				zap.String("action", action), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if !res.Allowed {
			retryAfter := int64(math.Ceil(res.ResetIn.Seconds()))
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			apperrors.HandleError(c, apperrors.RateLimitedError(action, retryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}
