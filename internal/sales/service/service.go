// Package service records sales against leads and sums their expected
// revenue for reporting.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/sales/domain"
	"crm_backend/internal/sales/repository"
	"crm_backend/internal/sales/transport"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/google/uuid"
)

// LeadDirectory answers whether a sale may point at a lead.
type LeadDirectory interface {
	LeadExists(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) (bool, error)
}

type Service struct {
	repo    repository.SaleStore
	leads   LeadDirectory
	val     *validator.Validator
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(repo repository.SaleStore, leads LeadDirectory, val *validator.Validator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{repo: repo, leads: leads, val: val, log: log, now: time.Now}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, req transport.CreateSaleRequest) (domain.Sale, error) {
	if err := s.val.Struct(req); err != nil {
		return domain.Sale{}, apperr.Validation("validation failed").WithDetails(validator.Describe(err))
	}
	ok, err := s.leads.LeadExists(ctx, tenantID, req.LeadID)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("check lead: %w", err)
	}
	if !ok {
		return domain.Sale{}, apperr.Validation("lead not found")
	}

	sale := domain.Sale{
		TenantID:          tenantID,
		LeadID:            req.LeadID,
		Title:             req.Title,
		Stage:             domain.Stage(req.Stage),
		Value:             req.Value,
		Probability:       req.Probability,
		ExpectedCloseDate: req.ExpectedCloseDate,
		Owner:             req.Owner,
		CreatedBy:         &actorID,
	}
	sale.Initialize(s.now().UTC())

	if err := s.repo.Create(ctx, &sale); err != nil {
		return domain.Sale{}, fmt.Errorf("create sale: %w", err)
	}
	return sale, nil
}

func (s *Service) ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Sale, error) {
	sales, err := s.repo.ListByLead(ctx, tenantID, leadID)
	if err != nil {
		return nil, fmt.Errorf("list lead sales: %w", err)
	}
	return sales, nil
}

// RecordConversion creates the closed-won sale for a lead's first
// conversion. Conversions without a value and repeat conversions are
// ignored, and a second delivery of the same event is a no-op.
func (s *Service) RecordConversion(ctx context.Context, e events.LeadConverted) error {
	if !e.FirstConversion || e.Value <= 0 {
		return nil
	}

	sale := domain.FromConversion(e.TenantID, e.LeadID, e.ConversionType, e.Value, e.Owner, e.ConvertedAt.UTC())
	err := s.repo.Create(ctx, &sale)
	if errors.Is(err, repository.ErrDuplicateConversion) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record conversion sale: %w", err)
	}
	s.metrics.Transition("sale.closed_won")
	s.log.Info("conversion sale recorded", "saleId", sale.ID, "leadId", e.LeadID, "value", e.Value)
	return nil
}

// Handle subscribes the service to LeadConverted.
func (s *Service) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadConverted)
	if !ok {
		return nil
	}
	return s.RecordConversion(ctx, e)
}

// SumExpectedRevenue totals open and won sales for the tenant. since, owner
// and leadSource are optional.
func (s *Service) SumExpectedRevenue(ctx context.Context, tenantID uuid.UUID, since *time.Time, owner *uuid.UUID, leadSource string) (float64, error) {
	total, err := s.repo.SumExpectedRevenue(ctx, tenantID, repository.RevenueFilter{Since: since, Owner: owner, LeadSource: leadSource})
	if err != nil {
		return 0, fmt.Errorf("sum expected revenue: %w", err)
	}
	return total, nil
}

var _ events.Handler = (*Service)(nil)
