// Package management handles the lead lifecycle: intake, updates,
// conversion, soft deletion, bulk operations and the engagement counters
// other modules feed. Every write goes through a load, mutate, rescore and
// version-checked save cycle.
package management

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/transport"
	"crm_backend/platform/apperr"
	"crm_backend/platform/cache"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/phone"
	"crm_backend/platform/validator"

	"github.com/google/uuid"
)

const (
	maxWriteAttempts = 3
	defaultCacheTTL  = 5 * time.Minute
	defaultHotLimit  = 50
	maxHotLimit      = 200
	defaultPageSize  = 20
	maxPageSize      = 100

	msgLeadNotFound   = "lead not found"
	msgDuplicateEmail = "a lead with this email already exists"
	msgLeadConflict   = "lead was modified concurrently, please retry"
)

// Repository defines the data access interface needed by the management service.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.LeadQueue
}

// Service handles lead lifecycle operations.
type Service struct {
	repo        Repository
	bus         events.Bus
	val         *validator.Validator
	log         *logger.Logger
	phoneRegion string

	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a lead management service. Caching is disabled until SetCache
// is called.
func New(repo Repository, bus events.Bus, val *validator.Validator, log *logger.Logger, phoneRegion string) *Service {
	if log == nil {
		log = logger.Discard()
	}
	if phoneRegion == "" {
		phoneRegion = phone.DefaultRegion
	}
	return &Service{
		repo:        repo,
		bus:         bus,
		val:         val,
		log:         log,
		phoneRegion: phoneRegion,
		cache:       cache.Noop{},
		cacheTTL:    defaultCacheTTL,
		now:         time.Now,
	}
}

// SetCache enables read-through caching of single leads.
func (s *Service) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	if ttl > 0 {
		s.cacheTTL = ttl
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock replaces time.Now, mainly for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates and normalizes the request, then stores a new lead in
// its intake state.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, req transport.CreateLeadRequest) (domain.Lead, error) {
	lead, err := s.buildLead(tenantID, req)
	if err != nil {
		return domain.Lead{}, err
	}
	return s.insert(ctx, lead, &actorID)
}

func (s *Service) insert(ctx context.Context, lead domain.Lead, actor *uuid.UUID) (domain.Lead, error) {
	lead.Initialize(actor, s.now().UTC())
	if err := s.repo.Create(ctx, &lead); err != nil {
		return domain.Lead{}, mapRepoError(err)
	}

	s.metrics.LeadCreated(lead.LeadScore)
	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  lead.TenantID,
		Email:     lead.Email,
		Source:    string(lead.Source),
		LeadScore: lead.LeadScore,
		CreatedBy: actor,
	})
	return lead, nil
}

// GetByID returns the lead, including soft-deleted ones.
func (s *Service) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (domain.Lead, error) {
	key := cacheKey(tenantID, id)

	var cached domain.Lead
	hit, err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err != nil {
		s.log.Warn("lead cache read failed", "key", key, "error", err)
	}
	if hit {
		s.metrics.CacheHit("lead")
		return cached, nil
	}
	s.metrics.CacheMiss("lead")

	lead, err := s.repo.GetByID(ctx, id, tenantID)
	if err != nil {
		return domain.Lead{}, mapRepoError(err)
	}

	if err := cache.SetJSON(ctx, s.cache, key, lead, s.cacheTTL); err != nil {
		s.log.Warn("lead cache write failed", "key", key, "error", err)
	}
	return lead, nil
}

// Update applies a partial update. Status and stage changes are recorded in
// the stage history.
func (s *Service) Update(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.UpdateLeadRequest) (domain.Lead, error) {
	if err := s.validate(req); err != nil {
		return domain.Lead{}, err
	}

	var normalizedPhone string
	if req.Phone != nil {
		p, err := s.normalizePhone(*req.Phone)
		if err != nil {
			return domain.Lead{}, err
		}
		normalizedPhone = p
	}

	return s.mutate(ctx, tenantID, id, func(lead *domain.Lead) error {
		applyUpdate(lead, req, normalizedPhone, &actorID, s.now().UTC())
		return nil
	})
}

// Convert marks the lead as won. Repeated calls refresh the conversion data
// without adding another history entry.
func (s *Service) Convert(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.ConvertLeadRequest) (domain.Lead, error) {
	if err := s.validate(req); err != nil {
		return domain.Lead{}, err
	}

	input := domain.ConversionInput{
		Type:   domain.ConversionType(req.Type),
		Value:  req.Value,
		Reason: req.Reason,
		Owner:  req.Owner,
	}

	var first bool
	lead, err := s.mutate(ctx, tenantID, id, func(lead *domain.Lead) error {
		first = lead.Convert(input, &actorID, s.now().UTC())
		return nil
	})
	if err != nil {
		return domain.Lead{}, err
	}

	if first {
		s.metrics.LeadConverted(string(lead.Conversion.Type))
	}
	convertedAt := s.now().UTC()
	if lead.Conversion.ConvertedAt != nil {
		convertedAt = *lead.Conversion.ConvertedAt
	}
	s.bus.Publish(ctx, events.LeadConverted{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          lead.ID,
		TenantID:        lead.TenantID,
		ConversionType:  string(lead.Conversion.Type),
		Value:           lead.Conversion.Value,
		Owner:           lead.Conversion.Owner,
		FirstConversion: first,
		ConvertedAt:     convertedAt,
	})
	return lead, nil
}

// SoftDelete flags the lead as deleted. Activities and documents that point
// at it are kept.
func (s *Service) SoftDelete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID) error {
	_, err := s.mutate(ctx, tenantID, id, func(lead *domain.Lead) error {
		if err := lead.MarkDeleted(actorID, s.now().UTC()); err != nil {
			return apperr.NotFound(msgLeadNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, events.LeadDeleted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    id,
		TenantID:  tenantID,
		DeletedBy: actorID,
	})
	return nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	if err := s.validate(req); err != nil {
		return transport.LeadListResponse{}, err
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	params := repository.ListParams{
		TenantID:      tenantID,
		Search:        req.Search,
		Status:        req.Status,
		PipelineStage: req.PipelineStage,
		Priority:      req.Priority,
		Source:        req.Source,
		Tag:           req.Tag,
		MinScore:      req.MinScore,
		Offset:        (req.Page - 1) * req.PageSize,
		Limit:         req.PageSize,
		SortBy:        req.SortBy,
		SortOrder:     req.SortOrder,
	}
	if req.AssignedTo != "" {
		assignee, err := uuid.Parse(req.AssignedTo)
		if err != nil {
			return transport.LeadListResponse{}, apperr.Validation("invalid assignedTo")
		}
		params.AssignedTo = &assignee
	}

	leads, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.LeadListResponse{}, fmt.Errorf("list leads: %w", err)
	}

	return transport.LeadListResponse{
		Items:      leads,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: (total + req.PageSize - 1) / req.PageSize,
	}, nil
}

// ListHot returns open leads scoring at least the hot threshold.
func (s *Service) ListHot(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = defaultHotLimit
	}
	limit = min(limit, maxHotLimit)

	leads, err := s.repo.ListHot(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list hot leads: %w", err)
	}
	return leads, nil
}

// ListFollowUp returns open leads with a follow-up due at or before horizon.
func (s *Service) ListFollowUp(ctx context.Context, tenantID uuid.UUID, horizon time.Time) ([]domain.Lead, error) {
	leads, err := s.repo.ListFollowUp(ctx, tenantID, horizon)
	if err != nil {
		return nil, fmt.Errorf("list follow-up leads: %w", err)
	}
	return leads, nil
}

// FollowUpHorizon is the end of the day that lies days from now.
func (s *Service) FollowUpHorizon(days int) time.Time {
	now := s.now()
	y, m, d := now.AddDate(0, 0, days).Date()
	return time.Date(y, m, d, 23, 59, 59, 0, now.Location())
}

// LeadExists reports whether a live lead exists in the tenant.
func (s *Service) LeadExists(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, leadID, tenantID)
}

// mutate loads the lead, applies fn, rescores and saves. A concurrent write
// causes the whole cycle to run again, up to maxWriteAttempts times.
func (s *Service) mutate(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, fn func(*domain.Lead) error) (domain.Lead, error) {
	for attempt := 1; ; attempt++ {
		lead, err := s.repo.GetByID(ctx, id, tenantID)
		if err != nil {
			return domain.Lead{}, mapRepoError(err)
		}
		if lead.IsDeleted {
			return domain.Lead{}, apperr.NotFound(msgLeadNotFound)
		}

		if err := fn(&lead); err != nil {
			return domain.Lead{}, err
		}
		lead.Rescore()

		err = s.repo.Save(ctx, &lead)
		if err == nil {
			s.invalidate(ctx, tenantID, id)
			return lead, nil
		}
		if errors.Is(err, repository.ErrConflict) && attempt < maxWriteAttempts {
			s.metrics.Conflict("lead")
			s.log.Debug("retrying lead write after conflict", "leadId", id, "attempt", attempt)
			continue
		}
		return domain.Lead{}, mapRepoError(err)
	}
}

func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, cacheKey(tenantID, id)); err != nil {
		s.log.Warn("lead cache invalidation failed", "leadId", id, "error", err)
	}
}

func (s *Service) validate(req any) error {
	if err := s.val.Struct(req); err != nil {
		return apperr.Validation("validation failed").WithDetails(validator.Describe(err))
	}
	return nil
}

func (s *Service) normalizePhone(raw string) (string, error) {
	normalized, err := phone.NormalizeMobile(raw, s.phoneRegion)
	switch {
	case err == nil:
		return normalized, nil
	case errors.Is(err, phone.ErrNotMobile):
		return "", apperr.Validation("phone must be a mobile number")
	default:
		return "", apperr.Validation("invalid phone number")
	}
}

func cacheKey(tenantID uuid.UUID, id uuid.UUID) string {
	return "lead:" + tenantID.String() + ":" + id.String()
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(msgLeadNotFound)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return apperr.Conflict(msgDuplicateEmail)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict(msgLeadConflict)
	default:
		if _, ok := apperr.As(err); ok {
			return err
		}
		return fmt.Errorf("lead store: %w", err)
	}
}
