package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shiftoffer_backend/internal/handlers"
	"shiftoffer_backend/internal/middleware"
	"shiftoffer_backend/ws"
)

// RegisterRoutes регистрирует HTTP и WebSocket маршруты.
// respondLimit - лимит на POST /queue-entries/:id/respond, может быть nil.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	wsHandler *ws.WebSocketHandler,
	respondLimit gin.HandlerFunc,
) {
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := ginRouter.Group("/api/v1")
	api.Use(middleware.IdentityMiddleware())
	{
		appHandlers.OpenShiftHandler.RegisterRoutes(api, respondLimit)
		appHandlers.NotificationHandler.RegisterRoutes(api)
	}

	if wsHandler != nil {
		ginRouter.GET("/ws", wsHandler.ServeWS)
	}
}
