package management

import (
	"slices"
	"strings"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/transport"
	"crm_backend/platform/sanitize"

	"github.com/google/uuid"
)

// buildLead turns a create request into an unsaved lead. Validation and
// phone normalization happen here so bulk import shares them.
func (s *Service) buildLead(tenantID uuid.UUID, req transport.CreateLeadRequest) (domain.Lead, error) {
	if err := s.validate(req); err != nil {
		return domain.Lead{}, err
	}
	normalizedPhone, err := s.normalizePhone(req.Phone)
	if err != nil {
		return domain.Lead{}, err
	}

	lead := domain.Lead{
		TenantID:       tenantID,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Email:          domain.NormalizeEmail(req.Email),
		Phone:          normalizedPhone,
		JobTitle:       strings.TrimSpace(req.JobTitle),
		Company:        toCompany(req.Company),
		Source:         domain.Source(req.Source),
		Campaign:       req.Campaign,
		Medium:         req.Medium,
		AssignedTo:     req.AssignedTo,
		EstimatedValue: req.EstimatedValue,
		NextFollowUp:   req.NextFollowUp,
		Tags:           normalizeTags(req.Tags),
		Notes:          sanitize.Text(req.Notes),
	}
	if req.BANT != nil {
		lead.BANT = toBANT(*req.BANT)
	}
	return lead, nil
}

func toCompany(req transport.CompanyRequest) domain.Company {
	return domain.Company{
		Name:     strings.TrimSpace(req.Name),
		Website:  req.Website,
		Industry: req.Industry,
		Size:     req.Size,
	}
}

func toBANT(req transport.BANTRequest) domain.BANT {
	return domain.BANT{
		Budget:    req.Budget,
		Authority: req.Authority,
		Need:      req.Need,
		Timeline:  req.Timeline,
	}
}

func applyUpdate(lead *domain.Lead, req transport.UpdateLeadRequest, normalizedPhone string, actor *uuid.UUID, now time.Time) {
	if req.FirstName != nil {
		lead.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		lead.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		lead.Email = domain.NormalizeEmail(*req.Email)
	}
	if req.Phone != nil {
		lead.Phone = normalizedPhone
	}
	if req.JobTitle != nil {
		lead.JobTitle = strings.TrimSpace(*req.JobTitle)
	}
	if req.Company != nil {
		lead.Company = toCompany(*req.Company)
	}
	if req.Source != nil {
		lead.Source = domain.Source(*req.Source)
	}
	if req.Campaign != nil {
		lead.Campaign = *req.Campaign
	}
	if req.Medium != nil {
		lead.Medium = *req.Medium
	}
	if req.Status != nil {
		lead.ChangeStatus(domain.Status(*req.Status), actor, req.StatusNotes, now)
	}
	if req.PipelineStage != nil {
		lead.ChangeStage(domain.PipelineStage(*req.PipelineStage), actor, req.StatusNotes, now)
	}
	if req.BANT != nil {
		lead.BANT = toBANT(*req.BANT)
	}
	if req.AssignedTo.Set {
		lead.AssignedTo = req.AssignedTo.Value
	}
	if req.EstimatedValue != nil {
		lead.EstimatedValue = *req.EstimatedValue
	}
	if req.NextFollowUp != nil {
		lead.NextFollowUp = req.NextFollowUp
	}
	if req.Tags != nil {
		lead.Tags = normalizeTags(*req.Tags)
	}
	if req.Notes != nil {
		lead.Notes = sanitize.Text(*req.Notes)
	}
}

// applyImport overwrites an existing lead with the fields of an import row.
// Status, stage, scores and history are left alone.
func applyImport(lead *domain.Lead, src domain.Lead) {
	lead.FirstName = src.FirstName
	lead.LastName = src.LastName
	lead.Phone = src.Phone
	if src.JobTitle != "" {
		lead.JobTitle = src.JobTitle
	}
	lead.Company = src.Company
	if src.Source != "" {
		lead.Source = src.Source
	}
	if src.Campaign != "" {
		lead.Campaign = src.Campaign
	}
	if src.Medium != "" {
		lead.Medium = src.Medium
	}
	if src.BANT != (domain.BANT{}) {
		lead.BANT = src.BANT
	}
	if src.AssignedTo != nil {
		lead.AssignedTo = src.AssignedTo
	}
	if src.EstimatedValue > 0 {
		lead.EstimatedValue = src.EstimatedValue
	}
	if src.NextFollowUp != nil {
		lead.NextFollowUp = src.NextFollowUp
	}
	lead.Tags = mergeTags(lead.Tags, src.Tags)
	if src.Notes != "" {
		lead.Notes = src.Notes
	}
}

func applyPatch(lead *domain.Lead, patch transport.BulkUpdatePatch, actor *uuid.UUID, now time.Time) {
	if patch.Status != nil {
		lead.ChangeStatus(domain.Status(*patch.Status), actor, "bulk update", now)
	}
	if patch.PipelineStage != nil {
		lead.ChangeStage(domain.PipelineStage(*patch.PipelineStage), actor, "bulk update", now)
	}
	if patch.AssignedTo.Set {
		lead.AssignedTo = patch.AssignedTo.Value
	}
	if len(patch.AddTags) > 0 {
		lead.Tags = mergeTags(lead.Tags, patch.AddTags)
	}
	if patch.NextFollowUp != nil {
		lead.NextFollowUp = patch.NextFollowUp
	}
}

func normalizeTags(tags []string) []string {
	return mergeTags(nil, tags)
}

// mergeTags appends unseen tags, trimmed and lower-cased, keeping order.
func mergeTags(existing []string, add []string) []string {
	out := make([]string, 0, len(existing)+len(add))
	out = append(out, existing...)
	for _, tag := range add {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}
