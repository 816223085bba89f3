package handler

import (
	"net/http"
	"time"

	"crm_backend/internal/activities/service"
	"crm_backend/internal/activities/transport"
	"crm_backend/platform/httpkit"
	"crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/overdue", h.ListOverdue)
	rg.GET("/upcoming", h.ListUpcoming)
	rg.GET("/reminders", h.ListReminders)
	rg.GET("/lead/:leadId", h.Timeline)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/reschedule", h.Reschedule)
	rg.POST("/:id/outcome", h.SetOutcome)
}

func (h *Handler) Create(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	var req transport.CreateActivityRequest
	if !h.bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Create(c.Request.Context(), tenantID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.NewActivityResponse(a, h.svc.Now()))
}

func (h *Handler) GetByID(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	activityID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.GetByID(c.Request.Context(), tenantID, activityID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewActivityResponse(a, h.svc.Now()))
}

func (h *Handler) Update(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	activityID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.UpdateActivityRequest
	if !h.bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Update(c.Request.Context(), tenantID, activityID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewActivityResponse(a, h.svc.Now()))
}

func (h *Handler) Delete(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	activityID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), tenantID, activityID); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Complete(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	activityID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.CompleteActivityRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	a, err := h.svc.Complete(c.Request.Context(), tenantID, activityID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewActivityResponse(a, h.svc.Now()))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	activityID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.CancelActivityRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	a, err := h.svc.Cancel(c.Request.Context(), tenantID, activityID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewActivityResponse(a, h.svc.Now()))
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	activityID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.RescheduleActivityRequest
	if !h.bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Reschedule(c.Request.Context(), tenantID, activityID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewActivityResponse(a, h.svc.Now()))
}

func (h *Handler) SetOutcome(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	activityID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.SetOutcomeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	a, err := h.svc.SetOutcome(c.Request.Context(), tenantID, activityID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewActivityResponse(a, h.svc.Now()))
}

func (h *Handler) Timeline(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	leadID, ok := httpkit.ParamUUID(c, "leadId")
	if !ok {
		return
	}

	items, err := h.svc.TimelineByLead(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.NewActivityResponses(items, h.svc.Now())})
}

func (h *Handler) ListOverdue(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	var req transport.ScheduleQuery
	if !h.bindQuery(c, &req) {
		return
	}

	items, err := h.svc.ListOverdue(c.Request.Context(), tenantID, parseAssignee(req.AssignedTo))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.NewActivityResponses(items, h.svc.Now())})
}

func (h *Handler) ListUpcoming(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	var req transport.ScheduleQuery
	if !h.bindQuery(c, &req) {
		return
	}

	items, err := h.svc.ListUpcoming(c.Request.Context(), tenantID, parseAssignee(req.AssignedTo), req.Days)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.NewActivityResponses(items, h.svc.Now())})
}

func (h *Handler) ListReminders(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	var req transport.RemindersQuery
	if !h.bindQuery(c, &req) {
		return
	}

	window := time.Duration(req.WindowMinutes) * time.Minute
	items, err := h.svc.ListNeedingReminders(c.Request.Context(), tenantID, window)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.NewActivityResponses(items, h.svc.Now())})
}

// parseAssignee expects a value that already passed the uuid validation tag.
func parseAssignee(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	return h.check(c, req)
}

// bindOptionalJSON accepts an empty body.
func (h *Handler) bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return false
		}
	}
	return h.check(c, req)
}

func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	return h.check(c, req)
}

func (h *Handler) check(c *gin.Context, req any) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return false
	}
	return true
}
