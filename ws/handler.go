package ws

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/pkg/apperrors"
)

type WebSocketHandler struct {
	hub      *Hub
	users    repositories.UserRepository
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler; пустой allowedOrigins разрешает любой Origin
func NewWebSocketHandler(hub *Hub, users repositories.UserRepository, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &WebSocketHandler{
		hub:   hub,
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		logger: logger.Named("ws"),
	}
}

// ServeWS - GET /ws?user_id=...
func (h *WebSocketHandler) ServeWS(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		userID = c.GetHeader("X-User-ID")
	}
	if userID == "" {
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("'user_id' query parameter is required"))
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			apperrors.HandleError(c, apperrors.ErrNotFound(err))
			return
		}
		apperrors.HandleError(c, apperrors.PersistenceError(err, "Failed to load user"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Debug("WebSocket upgrade error", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, user)
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}
	h.logger.Info("WebSocket client connected", zap.String("user_id", user.ID))

	go client.writePump()
	go client.readPump()
}
