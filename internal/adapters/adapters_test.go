package adapters

import (
	"context"
	"testing"
	"time"

	activitysvc "crm_backend/internal/activities/service"
	leadsdomain "crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leadCall struct {
	method   string
	tenantID uuid.UUID
	leadID   uuid.UUID
	touch    leadsdomain.ActivityTouch
	category string
}

type recordingLeads struct {
	known map[uuid.UUID]bool
	calls []leadCall
}

func (r *recordingLeads) LeadExists(_ context.Context, _ uuid.UUID, leadID uuid.UUID) (bool, error) {
	return r.known[leadID], nil
}

func (r *recordingLeads) RecordActivity(_ context.Context, tenantID uuid.UUID, leadID uuid.UUID, touch leadsdomain.ActivityTouch) error {
	r.calls = append(r.calls, leadCall{method: "activity", tenantID: tenantID, leadID: leadID, touch: touch})
	return nil
}

func (r *recordingLeads) RecordMeetingAttended(_ context.Context, tenantID uuid.UUID, leadID uuid.UUID) error {
	r.calls = append(r.calls, leadCall{method: "meeting", tenantID: tenantID, leadID: leadID})
	return nil
}

func (r *recordingLeads) RecordDocumentEngagement(_ context.Context, tenantID uuid.UUID, leadID uuid.UUID, category string) error {
	r.calls = append(r.calls, leadCall{method: "document", tenantID: tenantID, leadID: leadID, category: category})
	return nil
}

func TestLeadActivityRecorderMapsTouch(t *testing.T) {
	leads := &recordingLeads{}
	rec := NewLeadActivityRecorder(leads)
	tenant, lead := uuid.New(), uuid.New()
	at := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	due := at.Add(48 * time.Hour)

	require.NoError(t, rec.OnActivityCreated(context.Background(), tenant, lead, activitysvc.ActivityTouch{
		ActivityID:   uuid.New(),
		ActivityType: "follow-up",
		OccurredAt:   at,
		DueDate:      &due,
	}))
	require.NoError(t, rec.OnMeetingCompleted(context.Background(), tenant, lead))

	require.Len(t, leads.calls, 2)
	assert.Equal(t, leadCall{
		method:   "activity",
		tenantID: tenant,
		leadID:   lead,
		touch:    leadsdomain.ActivityTouch{ActivityType: "follow-up", OccurredAt: at, DueDate: &due},
	}, leads.calls[0])
	assert.Equal(t, "meeting", leads.calls[1].method)
}

func TestLeadEngagementRecorderForwardsCategory(t *testing.T) {
	known := uuid.New()
	leads := &recordingLeads{known: map[uuid.UUID]bool{known: true}}
	rec := NewLeadEngagementRecorder(leads)

	require.NoError(t, rec.OnDocumentViewed(context.Background(), uuid.New(), known, "proposal"))
	require.Len(t, leads.calls, 1)
	assert.Equal(t, "proposal", leads.calls[0].category)

	ok, err := rec.LeadExists(context.Background(), uuid.New(), known)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rec.LeadExists(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}
