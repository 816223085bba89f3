package handler

import (
	"fmt"
	"net/http"
	"time"

	"crm_backend/internal/analytics/service"
	"crm_backend/internal/analytics/transport"
	"crm_backend/platform/httpkit"
	"crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	csvContentType  = "text/csv; charset=utf-8"
	exportDateFmt   = "2006-01-02"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.Dashboard)
	rg.GET("/dashboard/export", h.Export)
}

func (h *Handler) Dashboard(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	var q transport.DashboardQuery
	if !h.bindQuery(c, &q) {
		return
	}

	d, err := h.svc.GetDashboard(c.Request.Context(), tenantID, q.Period, filters(q))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, d)
}

// Export downloads the dashboard as XLSX (default) or CSV.
func (h *Handler) Export(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	var q transport.ExportQuery
	if !h.bindQuery(c, &q) {
		return
	}

	d, err := h.svc.GetDashboard(c.Request.Context(), tenantID, q.Period, filters(q.DashboardQuery))
	if httpkit.HandleError(c, err) {
		return
	}

	var (
		data        []byte
		contentType = xlsxContentType
		ext         = "xlsx"
	)
	if q.Format == "csv" {
		data, err = service.ExportDashboardCSV(d)
		contentType, ext = csvContentType, "csv"
	} else {
		data, err = service.ExportDashboardXLSX(d)
	}
	if httpkit.HandleError(c, err) {
		return
	}

	filename := fmt.Sprintf("dashboard-%s-%s.%s", d.Period, time.Now().UTC().Format(exportDateFmt), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func filters(q transport.DashboardQuery) service.Filters {
	f := service.Filters{Source: q.Source}
	if q.AssignedTo != "" {
		if id, err := uuid.Parse(q.AssignedTo); err == nil {
			f.AssignedTo = &id
		}
	}
	return f
}

func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.Describe(err))
		return false
	}
	return true
}
