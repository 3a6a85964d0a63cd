package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shiftoffer_backend/internal/services"
	"shiftoffer_backend/internal/services/dto"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type OpenShiftHandler struct {
	*BaseHandler
	queueService  services.QueueService
	auditService  services.AuditService
	reportService services.ReportService
}

func NewOpenShiftHandler(base *BaseHandler, queue services.QueueService, audit services.AuditService, report services.ReportService) *OpenShiftHandler {
	return &OpenShiftHandler{
		BaseHandler:   base,
		queueService:  queue,
		auditService:  audit,
		reportService: report,
	}
}

// RegisterRoutes; respond - middleware для маршрута ответа (лимит запросов), может быть nil
func (h *OpenShiftHandler) RegisterRoutes(r *gin.RouterGroup, respond gin.HandlerFunc) {
	openShifts := r.Group("/open-shifts")
	{
		openShifts.POST("", h.PostOpenShift)
		openShifts.POST("/:id/cancel", h.CancelOpenShift)
		openShifts.GET("/:id/queue", h.GetQueueStatus)
		openShifts.GET("/:id/metrics", h.GetQueueMetrics)
		openShifts.GET("/:id/report.xlsx", h.ExportQueueReport)
	}

	entries := r.Group("/queue-entries")
	if respond != nil {
		entries.Use(respond)
	}
	entries.POST("/:id/respond", h.RespondToOffer)
}

func (h *OpenShiftHandler) PostOpenShift(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.PostOpenShiftRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}
	req.RequestedBy = userID

	result, err := h.queueService.PostOpenShift(c.Request.Context(), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *OpenShiftHandler) CancelOpenShift(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CancelOpenShiftRequest
	if c.Request.ContentLength != 0 && !h.BindAndValidate_JSON(c, &req) {
		return
	}

	if err := h.queueService.CancelOpenShift(c.Request.Context(), c.Param("id"), userID, req.Reason); err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "open_shift_id": c.Param("id")})
}

func (h *OpenShiftHandler) GetQueueStatus(c *gin.Context) {
	status, err := h.queueService.GetQueueStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *OpenShiftHandler) GetQueueMetrics(c *gin.Context) {
	metrics, err := h.auditService.ComputeQueueMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *OpenShiftHandler) ExportQueueReport(c *gin.Context) {
	buf, filename, err := h.reportService.ExportQueueReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *OpenShiftHandler) RespondToOffer(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.RespondRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	result, err := h.queueService.RespondToOffer(c.Request.Context(), c.Param("id"), userID, req.Response)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
