package repository

import (
	"context"

	"crm_backend/internal/sales/domain"

	"github.com/google/uuid"
)

type SaleStore interface {
	Create(ctx context.Context, s *domain.Sale) error
	ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Sale, error)
	SumExpectedRevenue(ctx context.Context, tenantID uuid.UUID, f RevenueFilter) (float64, error)
}

var _ SaleStore = (*Repository)(nil)
