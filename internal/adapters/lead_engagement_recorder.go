package adapters

import (
	"context"

	documentsvc "crm_backend/internal/documents/service"
	salessvc "crm_backend/internal/sales/service"

	"github.com/google/uuid"
)

// LeadEngagementRecorder credits document views to the lead the document
// belongs to.
type LeadEngagementRecorder struct {
	leads LeadWriter
}

func NewLeadEngagementRecorder(leads LeadWriter) *LeadEngagementRecorder {
	return &LeadEngagementRecorder{leads: leads}
}

func (a *LeadEngagementRecorder) OnDocumentViewed(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, category string) error {
	return a.leads.RecordDocumentEngagement(ctx, tenantID, leadID, category)
}

func (a *LeadEngagementRecorder) LeadExists(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) (bool, error) {
	return a.leads.LeadExists(ctx, tenantID, leadID)
}

var (
	_ documentsvc.LeadEngagementRecorder = (*LeadEngagementRecorder)(nil)
	_ salessvc.LeadDirectory             = (*LeadEngagementRecorder)(nil)
)
