package repository

import (
	"context"
	"time"

	"crm_backend/internal/activities/domain"

	"github.com/google/uuid"
)

// ScheduleParams scopes the overdue and upcoming queries.
type ScheduleParams struct {
	TenantID   uuid.UUID
	AssignedTo *uuid.UUID
	Now        time.Time
	Until      time.Time
}

type ActivityReader interface {
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Activity, error)
	ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Activity, error)
	ListOverdue(ctx context.Context, params ScheduleParams) ([]domain.Activity, error)
	ListUpcoming(ctx context.Context, params ScheduleParams) ([]domain.Activity, error)
}

type ActivityWriter interface {
	Create(ctx context.Context, a *domain.Activity) error
	Save(ctx context.Context, a *domain.Activity) error
	SpawnFollowUp(ctx context.Context, parent *domain.Activity, child *domain.Activity) (bool, error)
}

type ReminderStore interface {
	ListNeedingReminders(ctx context.Context, tenantID uuid.UUID, until time.Time) ([]domain.Activity, error)
	ListDueReminders(ctx context.Context, until time.Time, limit int) ([]domain.Activity, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, sentAt time.Time) (bool, error)
}

var (
	_ ActivityReader = (*Repository)(nil)
	_ ActivityWriter = (*Repository)(nil)
	_ ReminderStore  = (*Repository)(nil)
)
