package repository

import (
	"context"
	"time"

	"crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Lead, error)
	GetByEmail(ctx context.Context, email string, tenantID uuid.UUID) (domain.Lead, error)
	Exists(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
}

// LeadWriter persists whole aggregates. Save is version-checked.
type LeadWriter interface {
	Create(ctx context.Context, lead *domain.Lead) error
	Save(ctx context.Context, lead *domain.Lead) error
}

// LeadQueue serves the work lists sales reps act on.
type LeadQueue interface {
	ListHot(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Lead, error)
	ListFollowUp(ctx context.Context, tenantID uuid.UUID, horizon time.Time) ([]domain.Lead, error)
}

// ListParams filters a paginated lead listing. Deleted leads are never listed.
type ListParams struct {
	TenantID      uuid.UUID
	Search        string
	Status        *string
	PipelineStage *string
	Priority      *string
	Source        *string
	AssignedTo    *uuid.UUID
	Tag           *string
	MinScore      *int
	Offset        int
	Limit         int
	SortBy        string
	SortOrder     string
}

var (
	_ LeadReader = (*Repository)(nil)
	_ LeadWriter = (*Repository)(nil)
	_ LeadQueue  = (*Repository)(nil)
)
