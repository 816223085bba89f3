// Package domain holds the Lead aggregate and its state transitions.
// Nothing here touches storage; services load a lead, call these methods,
// and persist the result in a single write.
package domain

import (
	"errors"
	"slices"
	"strings"
	"time"

	"crm_backend/internal/leads/scoring"

	"github.com/google/uuid"
)

var (
	ErrAlreadyDeleted = errors.New("lead is already deleted")
	ErrDeleted        = errors.New("lead is deleted")
)

type Company struct {
	Name     string `json:"name"`
	Website  string `json:"website,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
}

// BANT stores the qualification inputs plus the derived overall score.
type BANT struct {
	Budget       int `json:"budget"`
	Authority    int `json:"authority"`
	Need         int `json:"need"`
	Timeline     int `json:"timeline"`
	OverallScore int `json:"overallScore"`
}

type Engagement struct {
	EmailOpens        int        `json:"emailOpens"`
	LinkClicks        int        `json:"linkClicks"`
	DocumentsViewed   int        `json:"documentsViewed"`
	MeetingAttendance int        `json:"meetingAttendance"`
	ProposalViews     int        `json:"proposalViews"`
	WebsiteVisits     int        `json:"websiteVisits"`
	EngagementScore   int        `json:"engagementScore"`
	LastEngagedAt     *time.Time `json:"lastEngagedAt,omitempty"`
}

type Conversion struct {
	Converted   bool           `json:"converted"`
	ConvertedAt *time.Time     `json:"convertedAt,omitempty"`
	Type        ConversionType `json:"type,omitempty"`
	Value       float64        `json:"value"`
	Reasons     []string       `json:"reasons,omitempty"`
	Owner       *uuid.UUID     `json:"owner,omitempty"`
}

// StageChange is one entry of the lead's status and stage history.
type StageChange struct {
	Stage     PipelineStage `json:"stage"`
	Status    Status        `json:"status"`
	ChangedAt time.Time     `json:"changedAt"`
	Notes     string        `json:"notes,omitempty"`
	ChangedBy *uuid.UUID    `json:"changedBy,omitempty"`
}

type Lead struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	JobTitle  string    `json:"jobTitle,omitempty"`
	Company   Company   `json:"company"`

	Source   Source `json:"source"`
	Campaign string `json:"campaign,omitempty"`
	Medium   string `json:"medium,omitempty"`

	Status        Status           `json:"status"`
	PipelineStage PipelineStage    `json:"pipelineStage"`
	Priority      scoring.Priority `json:"priority"`
	BANT          BANT             `json:"bant"`
	Engagement    Engagement       `json:"engagement"`
	LeadScore     int              `json:"leadScore"`

	TotalActivities int        `json:"totalActivities"`
	LastContactDate *time.Time `json:"lastContactDate,omitempty"`
	NextFollowUp    *time.Time `json:"nextFollowUp,omitempty"`
	AssignedTo      *uuid.UUID `json:"assignedTo,omitempty"`
	EstimatedValue  float64    `json:"estimatedValue"`
	Tags            []string   `json:"tags"`
	Notes           string     `json:"notes,omitempty"`

	Conversion   Conversion    `json:"conversion"`
	StageHistory []StageChange `json:"stageHistory"`

	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy *uuid.UUID `json:"deletedBy,omitempty"`

	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Version   int        `json:"version"`
}

// NormalizeEmail is the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Initialize puts a freshly built lead into its intake state: status new,
// the first pipeline stage, one history entry and current scores.
func (l *Lead) Initialize(actor *uuid.UUID, now time.Time) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.Email = NormalizeEmail(l.Email)
	if l.Source == "" {
		l.Source = SourceOther
	}
	if l.Tags == nil {
		l.Tags = []string{}
	}
	l.Status = StatusNew
	l.PipelineStage = InitialStage
	l.CreatedBy = actor
	l.CreatedAt = now
	l.UpdatedAt = now
	l.Version = 0
	l.StageHistory = []StageChange{{
		Stage:     l.PipelineStage,
		Status:    l.Status,
		ChangedAt: now,
		Notes:     "lead created",
		ChangedBy: actor,
	}}
	l.Rescore()
}

// Rescore recomputes every derived score from the current BANT and
// engagement inputs. Callers invoke it before each write.
func (l *Lead) Rescore() {
	result := scoring.Evaluate(
		scoring.BANT{
			Budget:    l.BANT.Budget,
			Authority: l.BANT.Authority,
			Need:      l.BANT.Need,
			Timeline:  l.BANT.Timeline,
		},
		scoring.Engagement{
			EmailOpens:        l.Engagement.EmailOpens,
			LinkClicks:        l.Engagement.LinkClicks,
			DocumentsViewed:   l.Engagement.DocumentsViewed,
			MeetingAttendance: l.Engagement.MeetingAttendance,
			ProposalViews:     l.Engagement.ProposalViews,
			WebsiteVisits:     l.Engagement.WebsiteVisits,
		},
	)
	l.BANT.OverallScore = result.BANTScore
	l.Engagement.EngagementScore = result.EngagementScore
	l.LeadScore = result.LeadScore
	l.Priority = result.Priority
}

// ChangeStatus moves the lead to status and records the change. It reports
// false when the status was already current.
func (l *Lead) ChangeStatus(status Status, actor *uuid.UUID, notes string, now time.Time) bool {
	if l.Status == status {
		return false
	}
	l.Status = status
	l.appendHistory(actor, notes, now)
	return true
}

// ChangeStage moves the lead along the funnel and records the change.
func (l *Lead) ChangeStage(stage PipelineStage, actor *uuid.UUID, notes string, now time.Time) bool {
	if l.PipelineStage == stage {
		return false
	}
	l.PipelineStage = stage
	l.appendHistory(actor, notes, now)
	return true
}

func (l *Lead) appendHistory(actor *uuid.UUID, notes string, now time.Time) {
	l.StageHistory = append(l.StageHistory, StageChange{
		Stage:     l.PipelineStage,
		Status:    l.Status,
		ChangedAt: now,
		Notes:     notes,
		ChangedBy: actor,
	})
}

type ConversionInput struct {
	Type   ConversionType
	Value  float64
	Reason string
	Owner  *uuid.UUID
}

// Convert marks the lead won. The first call stamps the conversion date and
// records a history entry; later calls only refresh type, value, owner and
// add an unseen reason. It reports whether this was the first conversion.
func (l *Lead) Convert(in ConversionInput, actor *uuid.UUID, now time.Time) bool {
	first := !l.Conversion.Converted

	l.Conversion.Converted = true
	if in.Type != "" {
		l.Conversion.Type = in.Type
	} else if l.Conversion.Type == "" {
		l.Conversion.Type = ConversionCustomer
	}
	if in.Value > 0 {
		l.Conversion.Value = in.Value
	}
	if in.Owner != nil {
		l.Conversion.Owner = in.Owner
	}
	if reason := strings.TrimSpace(in.Reason); reason != "" && !slices.Contains(l.Conversion.Reasons, reason) {
		l.Conversion.Reasons = append(l.Conversion.Reasons, reason)
	}

	if !first {
		return false
	}

	convertedAt := now
	l.Conversion.ConvertedAt = &convertedAt
	l.Status = StatusWon
	l.PipelineStage = StagePurchase
	notes := "converted to " + string(l.Conversion.Type)
	if in.Reason != "" {
		notes += ": " + strings.TrimSpace(in.Reason)
	}
	l.appendHistory(actor, notes, now)
	return true
}

// MarkDeleted soft-deletes the lead. Dependent activities and documents are
// left untouched.
func (l *Lead) MarkDeleted(actor uuid.UUID, now time.Time) error {
	if l.IsDeleted {
		return ErrAlreadyDeleted
	}
	deletedAt := now
	l.IsDeleted = true
	l.DeletedAt = &deletedAt
	l.DeletedBy = &actor
	return nil
}

// IsHot reports whether the lead belongs in the hot list.
func (l *Lead) IsHot() bool {
	return !l.IsDeleted && !l.Status.IsClosed() && scoring.IsHot(l.LeadScore)
}

// DueForFollowUp reports whether a follow-up is scheduled at or before horizon.
func (l *Lead) DueForFollowUp(horizon time.Time) bool {
	if l.IsDeleted || l.Status.IsClosed() || l.NextFollowUp == nil {
		return false
	}
	return !l.NextFollowUp.After(horizon)
}
