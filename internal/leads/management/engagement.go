package management

import (
	"context"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/transport"

	"github.com/google/uuid"
)

// The methods below are the entry points other modules use, through
// adapters, to report activity on a lead. Each is one rescoring write.

// RecordActivity counts a newly created activity against the lead.
func (s *Service) RecordActivity(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, touch domain.ActivityTouch) error {
	if touch.OccurredAt.IsZero() {
		touch.OccurredAt = s.now().UTC()
	}
	_, err := s.mutate(ctx, tenantID, leadID, func(lead *domain.Lead) error {
		lead.RecordActivity(touch)
		return nil
	})
	return err
}

// RecordMeetingAttended counts a completed meeting.
func (s *Service) RecordMeetingAttended(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) error {
	_, err := s.mutate(ctx, tenantID, leadID, func(lead *domain.Lead) error {
		lead.RecordMeetingAttended(s.now().UTC())
		return nil
	})
	return err
}

// RecordDocumentEngagement counts a document view; proposal documents also
// count as proposal views.
func (s *Service) RecordDocumentEngagement(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, category string) error {
	_, err := s.mutate(ctx, tenantID, leadID, func(lead *domain.Lead) error {
		lead.RecordDocumentView(category == "proposal", s.now().UTC())
		return nil
	})
	return err
}

// RecordEngagement adds externally tracked interactions such as email opens.
func (s *Service) RecordEngagement(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, req transport.RecordEngagementRequest) (domain.Lead, error) {
	if err := s.validate(req); err != nil {
		return domain.Lead{}, err
	}
	delta := domain.EngagementDelta{
		EmailOpens:    req.EmailOpens,
		LinkClicks:    req.LinkClicks,
		WebsiteVisits: req.WebsiteVisits,
	}
	if delta.IsZero() {
		return s.GetByID(ctx, tenantID, leadID)
	}
	return s.mutate(ctx, tenantID, leadID, func(lead *domain.Lead) error {
		lead.ApplyEngagement(delta, s.now().UTC())
		return nil
	})
}
