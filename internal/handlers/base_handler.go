package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/logger"
	"shiftoffer_backend/internal/middleware"
	"shiftoffer_backend/internal/validator"
	"shiftoffer_backend/pkg/apperrors"
)

type BaseHandler struct {
	validator *validator.Validator
}

func NewBaseHandler(v *validator.Validator) *BaseHandler {
	return &BaseHandler{validator: v}
}

// BindAndValidate_JSON разбирает тело и проверяет теги validate.
// При ошибке ответ уже записан.
func (h *BaseHandler) BindAndValidate_JSON(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindJSON(obj); err != nil {
		logger.CtxWarn(ctx, "Failed to bind JSON body", zap.Error(err), zap.String("path", c.FullPath()))
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid request body"))
		return false
	}

	if err := h.validator.Validate(obj); err != nil {
		var vErr *validator.ValidationError
		if errors.As(err, &vErr) {
			logger.CtxWarn(ctx, "Validation failed", zap.Any("errors", vErr.Errors), zap.String("path", c.FullPath()))
			apperrors.HandleError(c, apperrors.ValidationError(vErr.Errors))
		} else {
			logger.CtxError(ctx, "Internal validator error", err, zap.String("path", c.FullPath()))
			apperrors.HandleError(c, apperrors.InternalError(err))
		}
		return false
	}
	return true
}

func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	if _, ok := apperrors.AsAppError(err); ok {
		apperrors.HandleError(c, err)
		return
	}
	logger.CtxError(c.Request.Context(), "Internal server error", err, zap.String("path", c.FullPath()))
	apperrors.HandleError(c, apperrors.InternalError(err))
}

// GetAndAuthorizeUserID - пользователь из IdentityMiddleware
func (h *BaseHandler) GetAndAuthorizeUserID(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		logger.CtxWarn(c.Request.Context(), "Unauthorized access: userID not found in context",
			zap.String("path", c.FullPath()),
			zap.String("ip", c.ClientIP()),
		)
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return "", false
	}
	return userID, true
}

// requireSelf - пользователь может работать только со своими настройками
func (h *BaseHandler) requireSelf(c *gin.Context) (string, bool) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return "", false
	}
	if c.Param("id") != userID {
		apperrors.HandleError(c, apperrors.NewForbiddenError("Access to another user's settings is not allowed"))
		return "", false
	}
	return userID, true
}
