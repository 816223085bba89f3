// Package events defines the domain events exchanged between modules.
// Bus infrastructure lives in platform/events.
package events

import (
	"time"

	"crm_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads
// =============================================================================

type LeadCreated struct {
	BaseEvent
	LeadID    uuid.UUID  `json:"leadId"`
	TenantID  uuid.UUID  `json:"tenantId"`
	Email     string     `json:"email"`
	Source    string     `json:"source"`
	LeadScore int        `json:"leadScore"`
	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadConverted fires on every successful convert call; FirstConversion is
// false when an already converted lead was updated.
type LeadConverted struct {
	BaseEvent
	LeadID          uuid.UUID  `json:"leadId"`
	TenantID        uuid.UUID  `json:"tenantId"`
	ConversionType  string     `json:"conversionType"`
	Value           float64    `json:"value"`
	Owner           *uuid.UUID `json:"owner,omitempty"`
	FirstConversion bool       `json:"firstConversion"`
	ConvertedAt     time.Time  `json:"convertedAt"`
}

func (e LeadConverted) EventName() string { return "leads.lead.converted" }

type LeadDeleted struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	TenantID  uuid.UUID `json:"tenantId"`
	DeletedBy uuid.UUID `json:"deletedBy"`
}

func (e LeadDeleted) EventName() string { return "leads.lead.deleted" }

// =============================================================================
// Activities
// =============================================================================

type ActivityCompleted struct {
	BaseEvent
	ActivityID uuid.UUID `json:"activityId"`
	LeadID     uuid.UUID `json:"leadId"`
	TenantID   uuid.UUID `json:"tenantId"`
	Type       string    `json:"type"`
	Outcome    string    `json:"outcome,omitempty"`
}

func (e ActivityCompleted) EventName() string { return "activities.activity.completed" }

type ActivityReminderDue struct {
	BaseEvent
	ActivityID uuid.UUID  `json:"activityId"`
	LeadID     uuid.UUID  `json:"leadId"`
	TenantID   uuid.UUID  `json:"tenantId"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
	Subject    string     `json:"subject"`
	DueDate    time.Time  `json:"dueDate"`
}

func (e ActivityReminderDue) EventName() string { return "activities.reminder.due" }

// =============================================================================
// Documents
// =============================================================================

type DocumentViewed struct {
	BaseEvent
	DocumentID  uuid.UUID  `json:"documentId"`
	TenantID    uuid.UUID  `json:"tenantId"`
	LeadID      *uuid.UUID `json:"leadId,omitempty"`
	ViewerEmail string     `json:"viewerEmail,omitempty"`
	NewViewer   bool       `json:"newViewer"`
}

func (e DocumentViewed) EventName() string { return "documents.document.viewed" }

type DocumentSigned struct {
	BaseEvent
	DocumentID uuid.UUID  `json:"documentId"`
	TenantID   uuid.UUID  `json:"tenantId"`
	LeadID     *uuid.UUID `json:"leadId,omitempty"`
	CreatedBy  *uuid.UUID `json:"createdBy,omitempty"`
}

func (e DocumentSigned) EventName() string { return "documents.document.signed" }
