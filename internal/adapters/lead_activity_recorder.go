package adapters

import (
	"context"

	activitysvc "crm_backend/internal/activities/service"
	leadsdomain "crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// LeadWriter is the slice of the leads management service that other
// modules report engagement through.
type LeadWriter interface {
	LeadExists(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) (bool, error)
	RecordActivity(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, touch leadsdomain.ActivityTouch) error
	RecordMeetingAttended(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) error
	RecordDocumentEngagement(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, category string) error
}

// LeadActivityRecorder feeds activity effects into the owning lead.
type LeadActivityRecorder struct {
	leads LeadWriter
}

func NewLeadActivityRecorder(leads LeadWriter) *LeadActivityRecorder {
	return &LeadActivityRecorder{leads: leads}
}

func (a *LeadActivityRecorder) LeadExists(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) (bool, error) {
	return a.leads.LeadExists(ctx, tenantID, leadID)
}

func (a *LeadActivityRecorder) OnActivityCreated(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, touch activitysvc.ActivityTouch) error {
	return a.leads.RecordActivity(ctx, tenantID, leadID, leadsdomain.ActivityTouch{
		ActivityType: touch.ActivityType,
		OccurredAt:   touch.OccurredAt,
		DueDate:      touch.DueDate,
	})
}

func (a *LeadActivityRecorder) OnMeetingCompleted(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) error {
	return a.leads.RecordMeetingAttended(ctx, tenantID, leadID)
}

// Compile-time checks.
var (
	_ activitysvc.LeadDirectory        = (*LeadActivityRecorder)(nil)
	_ activitysvc.LeadActivityRecorder = (*LeadActivityRecorder)(nil)
)
