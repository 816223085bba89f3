package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"crm_backend/internal/documents/service"
	"crm_backend/internal/documents/transport"
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
	msgFileRequired     = "file is required"
	msgInvalidFormField = "invalid form field"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Upload)
	rg.GET("/trending", h.Trending)
	rg.GET("/lead/:leadId", h.ListByLead)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/analytics", h.Analytics)
	rg.POST("/:id/versions", h.AddVersion)
	rg.POST("/:id/rollback", h.Rollback)
	rg.POST("/:id/views", h.TrackView)
	rg.POST("/:id/downloads", h.TrackDownload)
	rg.POST("/:id/send", h.MarkSent)
	rg.GET("/:id/share-links", h.ListShareLinks)
	rg.POST("/:id/share-links", h.CreateShareLink)
	rg.DELETE("/:id/share-links/:token", h.RevokeShareLink)
	rg.GET("/:id/share-links/:token/qr", h.ShareLinkQR)
	rg.POST("/:id/signatures", h.RequestSignatures)
	rg.POST("/:id/signatures/sign", h.Sign)
	rg.POST("/:id/signatures/decline", h.Decline)
}

// RegisterPublicRoutes mounts the unauthenticated share-link endpoint.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/share/:token", h.OpenShareLink)
}

// Upload accepts either a multipart file or JSON metadata pointing at an
// already stored file.
func (h *Handler) Upload(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	if isMultipart(c) {
		meta, ok := h.metaFromForm(c)
		if !ok {
			return
		}
		file, closer, ok := fileFromForm(c)
		if !ok {
			return
		}
		defer closer.Close()
		d, err := h.svc.UploadFile(c.Request.Context(), tenantID, id.UserID(), meta, file)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.JSON(c, http.StatusCreated, transport.NewDocumentResponse(d))
		return
	}

	var req transport.CreateDocumentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	d, err := h.svc.Upload(c.Request.Context(), tenantID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewDocumentResponse(d))
}

func (h *Handler) GetByID(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	d, err := h.svc.GetByID(c.Request.Context(), tenantID, documentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponse(d))
}

func (h *Handler) ListByLead(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	leadID, ok := httpkit.ParamUUID(c, "leadId")
	if !ok {
		return
	}

	docs, err := h.svc.ListByLead(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponses(docs))
}

func (h *Handler) Trending(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}

	var q transport.TrendingQuery
	if !h.bindQuery(c, &q) {
		return
	}
	docs, err := h.svc.ListTrending(c.Request.Context(), tenantID, q.Days, q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponses(docs))
}

func (h *Handler) Analytics(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.GetAnalytics(c.Request.Context(), tenantID, documentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func (h *Handler) AddVersion(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	if isMultipart(c) {
		file, closer, ok := fileFromForm(c)
		if !ok {
			return
		}
		defer closer.Close()
		d, err := h.svc.AddVersionFile(c.Request.Context(), tenantID, documentID, id.UserID(), c.PostForm("changeNotes"), file)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.JSON(c, http.StatusCreated, transport.NewDocumentResponse(d))
		return
	}

	var req transport.AddVersionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	d, err := h.svc.AddVersion(c.Request.Context(), tenantID, documentID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewDocumentResponse(d))
}

func (h *Handler) Rollback(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.RollbackRequest
	if !h.bindJSON(c, &req) {
		return
	}
	d, err := h.svc.RollbackToVersion(c.Request.Context(), tenantID, documentID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponse(d))
}

func (h *Handler) TrackView(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.TrackViewRequest
	if !h.bindJSON(c, &req) {
		return
	}
	d, err := h.svc.TrackView(c.Request.Context(), tenantID, documentID, req.ViewInput(c.ClientIP(), c.Request.UserAgent()))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponse(d))
}

func (h *Handler) TrackDownload(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.TrackDownloadRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.svc.TrackDownload(c.Request.Context(), tenantID, documentID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	out := transport.DownloadResponse{Document: transport.NewDocumentResponse(res.Document)}
	if res.URL != nil {
		out.DownloadURL = res.URL.URL
		out.ExpiresAt = &res.URL.ExpiresAt
	}
	httpkit.OK(c, out)
}

func (h *Handler) MarkSent(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	d, err := h.svc.MarkSent(c.Request.Context(), tenantID, documentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponse(d))
}

func (h *Handler) ListShareLinks(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	links, err := h.svc.ListShareLinks(c.Request.Context(), tenantID, documentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, links)
}

func (h *Handler) CreateShareLink(c *gin.Context) {
	id, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.CreateShareLinkRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	link, err := h.svc.CreateShareLink(c.Request.Context(), tenantID, documentID, id.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, link)
}

func (h *Handler) RevokeShareLink(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.RevokeShareLink(c.Request.Context(), tenantID, documentID, c.Param("token")); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ShareLinkQR(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	png, err := h.svc.ShareLinkQR(c.Request.Context(), tenantID, documentID, c.Param("token"))
	if httpkit.HandleError(c, err) {
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) RequestSignatures(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.RequestSignaturesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	d, err := h.svc.RequestSignature(c.Request.Context(), tenantID, documentID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponse(d))
}

func (h *Handler) Sign(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.SignRequest
	if !h.bindJSON(c, &req) {
		return
	}
	d, err := h.svc.RecordSignature(c.Request.Context(), tenantID, documentID, req, c.ClientIP())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponse(d))
}

func (h *Handler) Decline(c *gin.Context) {
	_, tenantID, ok := httpkit.MustGetTenant(c)
	if !ok {
		return
	}
	documentID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.SignRequest
	if !h.bindJSON(c, &req) {
		return
	}
	d, err := h.svc.DeclineSignature(c.Request.Context(), tenantID, documentID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewDocumentResponse(d))
}

// OpenShareLink serves anonymous visitors; the token is the credential.
func (h *Handler) OpenShareLink(c *gin.Context) {
	var req transport.OpenShareLinkRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.svc.OpenShareLink(c.Request.Context(), c.Param("token"), req, c.ClientIP(), c.Request.UserAgent())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func fileFromForm(c *gin.Context) (service.FileUpload, io.Closer, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgFileRequired, nil)
		return service.FileUpload{}, nil, false
	}
	f, err := header.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgFileRequired, nil)
		return service.FileUpload{}, nil, false
	}
	return service.FileUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      f,
	}, f, true
}

func (h *Handler) metaFromForm(c *gin.Context) (transport.DocumentMeta, bool) {
	meta := transport.DocumentMeta{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
	}
	for field, dst := range map[string]**uuid.UUID{"leadId": &meta.LeadID, "projectId": &meta.ProjectID} {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidFormField, field)
			return meta, false
		}
		*dst = &parsed
	}
	if raw := c.PostForm("totalPages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidFormField, "totalPages")
			return meta, false
		}
		meta.TotalPages = n
	}
	return meta, h.check(c, &meta)
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
