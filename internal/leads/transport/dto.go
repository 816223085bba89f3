package transport

import (
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/platform/httpkit"

	"github.com/google/uuid"
)

// Request DTOs
type CompanyRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=200"`
	Website  string `json:"website,omitempty" validate:"omitempty,url,max=300"`
	Industry string `json:"industry,omitempty" validate:"max=100"`
	Size     string `json:"size,omitempty" validate:"max=50"`
}

type BANTRequest struct {
	Budget    int `json:"budget" validate:"gte=0,lte=10"`
	Authority int `json:"authority" validate:"gte=0,lte=10"`
	Need      int `json:"need" validate:"gte=0,lte=10"`
	Timeline  int `json:"timeline" validate:"gte=0,lte=10"`
}

type CreateLeadRequest struct {
	FirstName      string         `json:"firstName" validate:"required,notblank,max=100"`
	LastName       string         `json:"lastName" validate:"required,notblank,max=100"`
	Email          string         `json:"email" validate:"required,email,max=254"`
	Phone          string         `json:"phone" validate:"required,min=5,max=30"`
	JobTitle       string         `json:"jobTitle,omitempty" validate:"max=100"`
	Company        CompanyRequest `json:"company" validate:"required"`
	Source         string         `json:"source,omitempty" validate:"omitempty,oneof=website referral social-media email-campaign cold-call event advertisement import other"`
	Campaign       string         `json:"campaign,omitempty" validate:"max=100"`
	Medium         string         `json:"medium,omitempty" validate:"max=100"`
	BANT           *BANTRequest   `json:"bant,omitempty"`
	AssignedTo     *uuid.UUID     `json:"assignedTo,omitempty"`
	EstimatedValue float64        `json:"estimatedValue" validate:"gte=0"`
	NextFollowUp   *time.Time     `json:"nextFollowUp,omitempty"`
	Tags           []string       `json:"tags,omitempty" validate:"max=50,dive,notblank,max=50"`
	Notes          string         `json:"notes,omitempty" validate:"max=5000"`
}

type UpdateLeadRequest struct {
	FirstName      *string                     `json:"firstName,omitempty" validate:"omitempty,notblank,max=100"`
	LastName       *string                     `json:"lastName,omitempty" validate:"omitempty,notblank,max=100"`
	Email          *string                     `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone          *string                     `json:"phone,omitempty" validate:"omitempty,min=5,max=30"`
	JobTitle       *string                     `json:"jobTitle,omitempty" validate:"omitempty,max=100"`
	Company        *CompanyRequest             `json:"company,omitempty"`
	Source         *string                     `json:"source,omitempty" validate:"omitempty,oneof=website referral social-media email-campaign cold-call event advertisement import other"`
	Campaign       *string                     `json:"campaign,omitempty" validate:"omitempty,max=100"`
	Medium         *string                     `json:"medium,omitempty" validate:"omitempty,max=100"`
	Status         *string                     `json:"status,omitempty" validate:"omitempty,oneof=new contacted qualified proposal-sent negotiation won lost on-hold nurturing"`
	PipelineStage  *string                     `json:"pipelineStage,omitempty" validate:"omitempty,oneof=awareness interest consideration intent evaluation purchase retention"`
	StatusNotes    string                      `json:"statusNotes,omitempty" validate:"max=1000"`
	BANT           *BANTRequest                `json:"bant,omitempty"`
	AssignedTo     httpkit.Optional[uuid.UUID] `json:"assignedTo,omitempty" validate:"-"`
	EstimatedValue *float64                    `json:"estimatedValue,omitempty" validate:"omitempty,gte=0"`
	NextFollowUp   *time.Time                  `json:"nextFollowUp,omitempty"`
	Tags           *[]string                   `json:"tags,omitempty" validate:"omitempty,max=50,dive,notblank,max=50"`
	Notes          *string                     `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type ConvertLeadRequest struct {
	Type   string     `json:"type,omitempty" validate:"omitempty,oneof=customer opportunity partner"`
	Value  float64    `json:"value" validate:"gte=0"`
	Reason string     `json:"reason,omitempty" validate:"max=500"`
	Owner  *uuid.UUID `json:"owner,omitempty"`
}

type RecordEngagementRequest struct {
	EmailOpens    int `json:"emailOpens" validate:"gte=0,lte=1000"`
	LinkClicks    int `json:"linkClicks" validate:"gte=0,lte=1000"`
	WebsiteVisits int `json:"websiteVisits" validate:"gte=0,lte=1000"`
}

type BulkImportRequest struct {
	Leads         []CreateLeadRequest `json:"leads" validate:"required,min=1,max=1000"`
	UpsertByEmail bool                `json:"upsertByEmail"`
}

// BulkUpdatePatch is the subset of fields that can be applied to many leads.
type BulkUpdatePatch struct {
	Status        *string                     `json:"status,omitempty" validate:"omitempty,oneof=new contacted qualified proposal-sent negotiation won lost on-hold nurturing"`
	PipelineStage *string                     `json:"pipelineStage,omitempty" validate:"omitempty,oneof=awareness interest consideration intent evaluation purchase retention"`
	AssignedTo    httpkit.Optional[uuid.UUID] `json:"assignedTo,omitempty" validate:"-"`
	AddTags       []string                    `json:"addTags,omitempty" validate:"max=20,dive,notblank,max=50"`
	NextFollowUp  *time.Time                  `json:"nextFollowUp,omitempty"`
}

func (p BulkUpdatePatch) IsEmpty() bool {
	return p.Status == nil && p.PipelineStage == nil && !p.AssignedTo.Set && len(p.AddTags) == 0 && p.NextFollowUp == nil
}

type BulkUpdateRequest struct {
	IDs   []uuid.UUID     `json:"ids" validate:"max=1000"`
	Patch BulkUpdatePatch `json:"patch"`
}

type BulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"max=1000"`
}

type ListLeadsRequest struct {
	Search        string  `form:"search" validate:"max=100"`
	Status        *string `form:"status" validate:"omitempty,oneof=new contacted qualified proposal-sent negotiation won lost on-hold nurturing"`
	PipelineStage *string `form:"pipelineStage" validate:"omitempty,oneof=awareness interest consideration intent evaluation purchase retention"`
	Priority      *string `form:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Source        *string `form:"source" validate:"omitempty,oneof=website referral social-media email-campaign cold-call event advertisement import other"`
	AssignedTo    string  `form:"assignedTo" validate:"omitempty,uuid"`
	Tag           *string `form:"tag" validate:"omitempty,max=50"`
	MinScore      *int    `form:"minScore" validate:"omitempty,gte=0,lte=100"`
	Page          int     `form:"page" validate:"omitempty,min=1"`
	PageSize      int     `form:"pageSize" validate:"omitempty,min=1,max=100"`
	SortBy        string  `form:"sortBy" validate:"omitempty,oneof=createdAt updatedAt leadScore lastName nextFollowUp estimatedValue"`
	SortOrder     string  `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
}

type ListHotRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=200"`
}

type ListFollowUpRequest struct {
	// Horizon defaults to the end of today.
	Horizon *time.Time `form:"horizon" time_format:"2006-01-02T15:04:05Z07:00"`
	Days    int        `form:"days" validate:"omitempty,min=0,max=90"`
}

// Response DTOs
type LeadListResponse struct {
	Items      []domain.Lead `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}

type ItemError struct {
	Index      int    `json:"index"`
	Identifier string `json:"identifier"`
	Message    string `json:"message"`
}

type BulkImportResponse struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Errors  []ItemError `json:"errors"`
}

type BulkMutationResponse struct {
	Modified int         `json:"modified"`
	Errors   []ItemError `json:"errors"`
}
