package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeadDirectory answers whether an activity may point at a lead.
type LeadDirectory interface {
	LeadExists(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) (bool, error)
}

// UserDirectory answers whether a user belongs to the tenant.
type UserDirectory interface {
	UserExists(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (bool, error)
}

// ActivityTouch describes a newly created activity for the lead counters.
type ActivityTouch struct {
	ActivityID   uuid.UUID
	ActivityType string
	OccurredAt   time.Time
	DueDate      *time.Time
}

// LeadActivityRecorder feeds activity effects back into the owning lead.
type LeadActivityRecorder interface {
	OnActivityCreated(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, touch ActivityTouch) error
	OnMeetingCompleted(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) error
}
