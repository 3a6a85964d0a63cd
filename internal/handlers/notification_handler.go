package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shiftoffer_backend/internal/services"
	"shiftoffer_backend/internal/services/dto"
)

type NotificationHandler struct {
	*BaseHandler
	notificationService services.NotificationService
}

func NewNotificationHandler(base *BaseHandler, notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
	}
}

func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", h.SendNotification)
		notifications.GET("/stats", h.GetDeliveryStats)
	}

	users := r.Group("/users/:id")
	{
		users.GET("/preferences", h.GetPreferences)
		users.PUT("/preferences", h.SetPreference)
		users.POST("/push-subscriptions", h.SavePushSubscription)
	}
}

func (h *NotificationHandler) SendNotification(c *gin.Context) {
	if _, ok := h.GetAndAuthorizeUserID(c); !ok {
		return
	}

	var req dto.SendNotificationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	result, err := h.notificationService.SendNotification(c.Request.Context(), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *NotificationHandler) GetDeliveryStats(c *gin.Context) {
	stats, err := h.notificationService.GetDeliveryStats(c.Request.Context())
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	userID, ok := h.requireSelf(c)
	if !ok {
		return
	}

	prefs, err := h.notificationService.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

func (h *NotificationHandler) SetPreference(c *gin.Context) {
	userID, ok := h.requireSelf(c)
	if !ok {
		return
	}

	var req dto.SetPreferenceRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	if err := h.notificationService.SetPreference(c.Request.Context(), userID, &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "enabled": *req.Enabled})
}

func (h *NotificationHandler) SavePushSubscription(c *gin.Context) {
	userID, ok := h.requireSelf(c)
	if !ok {
		return
	}

	var req dto.PushSubscriptionRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	if err := h.notificationService.SavePushSubscription(c.Request.Context(), userID, &req); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
