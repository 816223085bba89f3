package service

import (
	"context"

	"github.com/google/uuid"
)

// LeadEngagementRecorder credits a document view to the lead it was shared with.
type LeadEngagementRecorder interface {
	OnDocumentViewed(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, category string) error
}
