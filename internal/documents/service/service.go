// Package service implements document uploads, engagement tracking, share
// links and signatures.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"crm_backend/internal/adapters/storage"
	"crm_backend/internal/documents/domain"
	"crm_backend/internal/documents/repository"
	"crm_backend/internal/documents/transport"
	"crm_backend/internal/events"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/sanitize"
	"crm_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	maxWriteAttempts    = 3
	maxTokenAttempts    = 3
	defaultTrendingDays = 7
	defaultTrendingSize = 10
	qrCodeSize          = 256

	sharePathPrefix = "/share/"

	msgDocumentNotFound  = "document not found"
	msgDocumentConflict  = "document was modified concurrently, please retry"
	msgShareLinkNotFound = "share link not found"
	msgStorageDisabled   = "file storage is not configured"
)

type Repository interface {
	repository.DocumentReader
	repository.DocumentWriter
	repository.ShareLinkStore
}

// FileUpload is a file received from a client.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type Service struct {
	repo     Repository
	store    storage.FileStore
	recorder LeadEngagementRecorder
	bus      events.Bus
	val      *validator.Validator
	log      *logger.Logger
	metrics  *metrics.Metrics
	tokens   domain.TokenGenerator
	baseURL  string
	now      func() time.Time
}

// New creates the service. store may be nil when object storage is not
// configured; byte uploads and download links are then unavailable.
func New(repo Repository, store storage.FileStore, recorder LeadEngagementRecorder, bus events.Bus, val *validator.Validator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		repo:     repo,
		store:    store,
		recorder: recorder,
		bus:      bus,
		val:      val,
		log:      log,
		tokens:   domain.RandomTokens{},
		now:      time.Now,
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock replaces time.Now, mainly for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) SetTokenGenerator(gen domain.TokenGenerator) {
	s.tokens = gen
}

// SetPublicBaseURL sets the origin share-link URLs are built on.
func (s *Service) SetPublicBaseURL(base string) {
	s.baseURL = strings.TrimRight(base, "/")
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Upload registers a document whose file the caller already stored.
func (s *Service) Upload(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, req transport.CreateDocumentRequest) (domain.Document, error) {
	if err := s.validate(req); err != nil {
		return domain.Document{}, err
	}
	return s.create(ctx, tenantID, actorID, req.DocumentMeta, req.File.Info())
}

// UploadFile stores the bytes through the file store and registers the
// document.
func (s *Service) UploadFile(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, meta transport.DocumentMeta, file FileUpload) (domain.Document, error) {
	if err := s.validate(meta); err != nil {
		return domain.Document{}, err
	}
	info, err := s.storeFile(ctx, tenantID, file)
	if err != nil {
		return domain.Document{}, err
	}
	return s.create(ctx, tenantID, actorID, meta, info)
}

func (s *Service) create(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, meta transport.DocumentMeta, file domain.FileInfo) (domain.Document, error) {
	d := domain.NewDocument(domain.NewDocumentInput{
		TenantID:    tenantID,
		LeadID:      meta.LeadID,
		ProjectID:   meta.ProjectID,
		Title:       meta.Title,
		Description: sanitize.Text(meta.Description),
		Category:    domain.Category(meta.Category),
		TotalPages:  meta.TotalPages,
		File:        file,
		UploadedBy:  &actorID,
	}, s.clock())

	if err := s.repo.Create(ctx, &d); err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	s.log.Info("document uploaded", "documentId", d.ID, "tenantId", tenantID, "category", d.Category)
	return d, nil
}

func (s *Service) storeFile(ctx context.Context, tenantID uuid.UUID, file FileUpload) (domain.FileInfo, error) {
	if s.store == nil {
		return domain.FileInfo{}, apperr.BadRequest(msgStorageDisabled)
	}
	if err := storage.ValidateContentType(file.ContentType); err != nil {
		return domain.FileInfo{}, apperr.Validation(err.Error())
	}

	folder := tenantID.String() + "/documents"
	stored, err := s.store.Put(ctx, folder, file.FileName, file.ContentType, file.Reader, file.Size)
	if err != nil {
		return domain.FileInfo{}, fmt.Errorf("store document file: %w", err)
	}
	return domain.FileInfo{
		FileName: file.FileName,
		FilePath: stored.Key,
		FileSize: stored.Size,
		MimeType: file.ContentType,
		Checksum: stored.Checksum,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (domain.Document, error) {
	d, err := s.repo.GetByID(ctx, id, tenantID)
	if err != nil {
		return domain.Document{}, mapRepoError(err)
	}
	return d, nil
}

func (s *Service) ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Document, error) {
	docs, err := s.repo.ListByLead(ctx, tenantID, leadID)
	if err != nil {
		return nil, fmt.Errorf("list lead documents: %w", err)
	}
	return docs, nil
}

// ListTrending returns the most viewed documents seen within the last days.
func (s *Service) ListTrending(ctx context.Context, tenantID uuid.UUID, days int, limit int) ([]domain.Document, error) {
	if days <= 0 {
		days = defaultTrendingDays
	}
	if limit <= 0 {
		limit = defaultTrendingSize
	}
	docs, err := s.repo.ListTrending(ctx, tenantID, s.clock().AddDate(0, 0, -days), limit)
	if err != nil {
		return nil, fmt.Errorf("list trending documents: %w", err)
	}
	return docs, nil
}

func (s *Service) GetAnalytics(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (transport.AnalyticsResponse, error) {
	d, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.AnalyticsResponse{}, err
	}
	return transport.NewAnalyticsResponse(d), nil
}

func (s *Service) AddVersion(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.AddVersionRequest) (domain.Document, error) {
	if err := s.validate(req); err != nil {
		return domain.Document{}, err
	}
	return s.addVersion(ctx, tenantID, id, actorID, req.File.Info(), req.ChangeNotes)
}

// AddVersionFile stores the bytes and appends them as the new active version.
func (s *Service) AddVersionFile(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, notes string, file FileUpload) (domain.Document, error) {
	if _, err := s.GetByID(ctx, tenantID, id); err != nil {
		return domain.Document{}, err
	}
	info, err := s.storeFile(ctx, tenantID, file)
	if err != nil {
		return domain.Document{}, err
	}
	return s.addVersion(ctx, tenantID, id, actorID, info, notes)
}

func (s *Service) addVersion(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, info domain.FileInfo, notes string) (domain.Document, error) {
	return s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		d.AddVersion(info, sanitize.Text(notes), &actorID, s.clock())
		return nil
	})
}

func (s *Service) RollbackToVersion(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.RollbackRequest) (domain.Document, error) {
	if err := s.validate(req); err != nil {
		return domain.Document{}, err
	}
	return s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		return d.RollbackToVersion(req.VersionNumber)
	})
}

func (s *Service) MarkSent(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (domain.Document, error) {
	d, err := s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		d.MarkSent()
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	s.metrics.Transition("document.sent")
	return d, nil
}

// TrackView records a viewing session. Views tied to a lead are credited to
// that lead.
func (s *Service) TrackView(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, in domain.ViewInput) (domain.Document, error) {
	var newViewer bool
	d, err := s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		newViewer = d.TrackView(in, s.clock())
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	s.afterEngagement(ctx, d, in.LeadID, in.ViewerEmail, newViewer)
	return d, nil
}

// DownloadResult carries the updated document and, when storage is
// configured, a presigned link to the active version.
type DownloadResult struct {
	Document domain.Document
	URL      *storage.PresignedURL
}

func (s *Service) TrackDownload(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.TrackDownloadRequest) (DownloadResult, error) {
	if err := s.validate(req); err != nil {
		return DownloadResult{}, err
	}

	d, err := s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		d.TrackDownload(req.ViewerID, req.ViewerEmail, s.clock())
		return nil
	})
	if err != nil {
		return DownloadResult{}, err
	}
	s.afterEngagement(ctx, d, req.LeadID, req.ViewerEmail, false)

	url, err := s.downloadURL(ctx, d)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{Document: d, URL: url}, nil
}

func (s *Service) downloadURL(ctx context.Context, d domain.Document) (*storage.PresignedURL, error) {
	if s.store == nil || d.FilePath == "" {
		return nil, nil
	}
	url, err := s.store.PresignDownload(ctx, d.FilePath)
	if err != nil {
		return nil, fmt.Errorf("presign document download: %w", err)
	}
	return &url, nil
}

func (s *Service) afterEngagement(ctx context.Context, d domain.Document, viewLead *uuid.UUID, viewerEmail string, newViewer bool) {
	leadID := d.LeadID
	if leadID == nil {
		leadID = viewLead
	}

	s.metrics.DocumentViewed()
	if leadID != nil {
		if err := s.recorder.OnDocumentViewed(ctx, d.TenantID, *leadID, string(d.Category)); err != nil {
			s.log.Warn("recording document engagement on lead failed", "documentId", d.ID, "leadId", *leadID, "error", err)
		}
	}
	s.bus.Publish(ctx, events.DocumentViewed{
		BaseEvent:   events.NewBaseEvent(),
		DocumentID:  d.ID,
		TenantID:    d.TenantID,
		LeadID:      leadID,
		ViewerEmail: viewerEmail,
		NewViewer:   newViewer,
	})
}

// RequestSignature asks each signer to sign the document.
func (s *Service) RequestSignature(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.RequestSignaturesRequest) (domain.Document, error) {
	if err := s.validate(req); err != nil {
		return domain.Document{}, err
	}
	signers := make([]domain.Signer, 0, len(req.Signers))
	for _, sg := range req.Signers {
		signers = append(signers, domain.Signer{Email: sg.Email, Name: sg.Name})
	}
	return s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		return d.RequestSignatures(signers, s.clock())
	})
}

// RecordSignature signs on behalf of email. When the last signer signs the
// document becomes signed and DocumentSigned is published.
func (s *Service) RecordSignature(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.SignRequest, ip string) (domain.Document, error) {
	if err := s.validate(req); err != nil {
		return domain.Document{}, err
	}

	var allSigned bool
	d, err := s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		var err error
		allSigned, err = d.RecordSignature(req.Email, ip, s.clock())
		return err
	})
	if err != nil {
		return domain.Document{}, err
	}
	if allSigned {
		s.metrics.Transition("document.signed")
		s.bus.Publish(ctx, events.DocumentSigned{
			BaseEvent:  events.NewBaseEvent(),
			DocumentID: d.ID,
			TenantID:   d.TenantID,
			LeadID:     d.LeadID,
			CreatedBy:  d.CreatedBy,
		})
	}
	return d, nil
}

func (s *Service) DeclineSignature(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.SignRequest) (domain.Document, error) {
	if err := s.validate(req); err != nil {
		return domain.Document{}, err
	}
	return s.mutate(ctx, tenantID, id, func(d *domain.Document) error {
		return d.DeclineSignature(req.Email)
	})
}

// CreateShareLink issues a new public link for the document.
func (s *Service) CreateShareLink(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.CreateShareLinkRequest) (transport.ShareLinkResponse, error) {
	if err := s.validate(req); err != nil {
		return transport.ShareLinkResponse{}, err
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.clock()) {
		return transport.ShareLinkResponse{}, apperr.Validation("expiresAt must be in the future")
	}

	d, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return transport.ShareLinkResponse{}, err
	}

	opts := domain.ShareLinkOptions{
		Password:      req.Password,
		ExpiresAt:     req.ExpiresAt,
		MaxViews:      req.MaxViews,
		AllowDownload: req.AllowDownload,
	}
	for attempt := 1; ; attempt++ {
		link, err := domain.NewShareLink(s.tokens, &d, opts, &actorID, s.clock())
		if err != nil {
			return transport.ShareLinkResponse{}, fmt.Errorf("build share link: %w", err)
		}
		err = s.repo.CreateShareLink(ctx, &link)
		if err == nil {
			s.log.Info("share link created", "documentId", d.ID, "tenantId", tenantID)
			return s.shareLinkResponse(link), nil
		}
		if errors.Is(err, repository.ErrDuplicateToken) && attempt < maxTokenAttempts {
			continue
		}
		return transport.ShareLinkResponse{}, fmt.Errorf("create share link: %w", err)
	}
}

func (s *Service) ListShareLinks(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) ([]transport.ShareLinkResponse, error) {
	links, err := s.repo.ListShareLinks(ctx, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	out := make([]transport.ShareLinkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, s.shareLinkResponse(l))
	}
	return out, nil
}

func (s *Service) RevokeShareLink(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, token string) error {
	if err := s.repo.RevokeShareLink(ctx, id, tenantID, token); err != nil {
		return mapRepoError(err)
	}
	s.log.Info("share link revoked", "documentId", id, "tenantId", tenantID)
	return nil
}

// ShareLinkQR renders the link URL as a PNG QR code.
func (s *Service) ShareLinkQR(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, token string) ([]byte, error) {
	link, err := s.repo.GetShareLink(ctx, token)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if link.DocumentID != id || link.TenantID != tenantID {
		return nil, apperr.NotFound(msgShareLinkNotFound)
	}

	png, err := qrcode.Encode(s.shareURL(token), qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("encode share link qr: %w", err)
	}
	return png, nil
}

// OpenShareLink is the anonymous entry point. Access is checked against the
// link policy, a view is consumed atomically and the visit is tracked.
func (s *Service) OpenShareLink(ctx context.Context, token string, req transport.OpenShareLinkRequest, ip, userAgent string) (transport.SharedDocumentResponse, error) {
	if err := s.validate(req); err != nil {
		return transport.SharedDocumentResponse{}, err
	}

	link, err := s.repo.GetShareLink(ctx, token)
	if err != nil {
		return transport.SharedDocumentResponse{}, mapRepoError(err)
	}
	if err := link.CheckAccess(s.clock(), req.Password); err != nil {
		return transport.SharedDocumentResponse{}, mapShareError(err)
	}

	link, ok, err := s.repo.ConsumeShareLinkView(ctx, token, s.clock())
	if err != nil {
		return transport.SharedDocumentResponse{}, fmt.Errorf("consume share link view: %w", err)
	}
	if !ok {
		// lost a race for the last view, or the link was revoked meanwhile
		return transport.SharedDocumentResponse{}, apperr.Gone(domain.ErrLinkExhausted.Error())
	}

	view := transport.TrackViewRequest{
		ViewerEmail: req.ViewerEmail,
		ViewerName:  req.ViewerName,
		ViewTime:    req.ViewTime,
		Pages:       req.Pages,
	}
	d, err := s.TrackView(ctx, link.TenantID, link.DocumentID, view.ViewInput(ip, userAgent))
	if err != nil {
		return transport.SharedDocumentResponse{}, err
	}

	out := transport.SharedDocumentResponse{
		DocumentID:    d.ID,
		Title:         d.Title,
		Description:   d.Description,
		Category:      d.Category,
		FileName:      d.FileName,
		MimeType:      d.MimeType,
		TotalPages:    d.TotalPages,
		AllowDownload: link.AllowDownload,
	}
	if link.AllowDownload {
		url, err := s.downloadURL(ctx, d)
		if err != nil {
			return transport.SharedDocumentResponse{}, err
		}
		if url != nil {
			out.DownloadURL = url.URL
		}
	}
	return out, nil
}

func (s *Service) shareURL(token string) string {
	return s.baseURL + sharePathPrefix + token
}

func (s *Service) shareLinkResponse(l domain.ShareLink) transport.ShareLinkResponse {
	return transport.ShareLinkResponse{ShareLink: l, HasPassword: l.HasPassword(), URL: s.shareURL(l.Token)}
}

// mutate loads the document, applies fn and writes it back in one
// version-checked update, retrying on conflict.
func (s *Service) mutate(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, fn func(*domain.Document) error) (domain.Document, error) {
	for attempt := 1; ; attempt++ {
		d, err := s.repo.GetByID(ctx, id, tenantID)
		if err != nil {
			return domain.Document{}, mapRepoError(err)
		}

		if err := fn(&d); err != nil {
			return domain.Document{}, mapDomainError(err)
		}
		d.UpdatedAt = s.clock()

		err = s.repo.Save(ctx, &d)
		if err == nil {
			return d, nil
		}
		if errors.Is(err, repository.ErrConflict) && attempt < maxWriteAttempts {
			s.metrics.Conflict("document")
			s.log.Debug("retrying document write after conflict", "documentId", id, "attempt", attempt)
			continue
		}
		return domain.Document{}, mapRepoError(err)
	}
}

func (s *Service) validate(req any) error {
	if err := s.val.Struct(req); err != nil {
		return apperr.Validation("validation failed").WithDetails(validator.Describe(err))
	}
	return nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(msgDocumentNotFound)
	case errors.Is(err, repository.ErrShareLinkNotFound):
		return apperr.NotFound(msgShareLinkNotFound)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict(msgDocumentConflict)
	default:
		return err
	}
}

func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrVersionNotFound), errors.Is(err, domain.ErrSignerNotFound):
		return apperr.NotFound(err.Error())
	case errors.Is(err, domain.ErrNoSigners):
		return apperr.Validation(err.Error())
	default:
		return err
	}
}

func mapShareError(err error) error {
	switch {
	case errors.Is(err, domain.ErrLinkInactive), errors.Is(err, domain.ErrLinkExpired), errors.Is(err, domain.ErrLinkExhausted):
		return apperr.Gone(err.Error())
	case errors.Is(err, domain.ErrPasswordRequired):
		return apperr.Unauthorized(err.Error())
	case errors.Is(err, domain.ErrWrongPassword):
		return apperr.Forbidden(err.Error())
	default:
		return err
	}
}
