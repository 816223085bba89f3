package transport

import (
	"time"

	"crm_backend/internal/activities/domain"
	"crm_backend/platform/httpkit"

	"github.com/google/uuid"
)

type CreateActivityRequest struct {
	LeadID           uuid.UUID  `json:"leadId" validate:"required"`
	Type             string     `json:"type" validate:"required,oneof=call email meeting task note follow-up demo proposal"`
	Subject          string     `json:"subject" validate:"required,notblank,max=200"`
	Description      string     `json:"description,omitempty" validate:"max=5000"`
	Priority         string     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
	ScheduledDate    *time.Time `json:"scheduledDate,omitempty"`
	StartTime        *time.Time `json:"startTime,omitempty"`
	EndTime          *time.Time `json:"endTime,omitempty" validate:"omitempty,gtfield=StartTime"`
	DurationMinutes  int        `json:"durationMinutes,omitempty" validate:"gte=0,lte=1440"`
	ReminderEnabled  bool       `json:"reminderEnabled"`
	RemindAt         *time.Time `json:"remindAt,omitempty"`
	RequiresFollowUp bool       `json:"requiresFollowUp"`
	FollowUpDate     *time.Time `json:"followUpDate,omitempty" validate:"required_if=RequiresFollowUp true"`
	AssignedTo       *uuid.UUID `json:"assignedTo,omitempty"`
}

type UpdateActivityRequest struct {
	Subject          *string                     `json:"subject,omitempty" validate:"omitempty,notblank,max=200"`
	Description      *string                     `json:"description,omitempty" validate:"omitempty,max=5000"`
	Priority         *string                     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Status           *string                     `json:"status,omitempty" validate:"omitempty,oneof=pending in-progress deferred waiting"`
	ScheduledDate    *time.Time                  `json:"scheduledDate,omitempty"`
	StartTime        *time.Time                  `json:"startTime,omitempty"`
	EndTime          *time.Time                  `json:"endTime,omitempty"`
	DurationMinutes  *int                        `json:"durationMinutes,omitempty" validate:"omitempty,gte=0,lte=1440"`
	ReminderEnabled  *bool                       `json:"reminderEnabled,omitempty"`
	RequiresFollowUp *bool                       `json:"requiresFollowUp,omitempty"`
	FollowUpDate     *time.Time                  `json:"followUpDate,omitempty"`
	AssignedTo       httpkit.Optional[uuid.UUID] `json:"assignedTo,omitempty" validate:"-"`
}

type CompleteActivityRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=5000"`
}

type CancelActivityRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

type RescheduleActivityRequest struct {
	DueDate time.Time `json:"dueDate" validate:"required"`
	Reason  string    `json:"reason,omitempty" validate:"max=1000"`
}

type SetOutcomeRequest struct {
	Result    string `json:"result" validate:"required,oneof=successful unsuccessful no-answer voicemail callback-requested interested not-interested meeting-scheduled proposal-requested document-viewed deal-closed rescheduled cancelled"`
	Notes     string `json:"notes,omitempty" validate:"max=5000"`
	Sentiment string `json:"sentiment,omitempty" validate:"omitempty,oneof=positive neutral negative"`
}

type ScheduleQuery struct {
	AssignedTo string `form:"assignedTo" validate:"omitempty,uuid"`
	Days       int    `form:"days" validate:"omitempty,min=1,max=90"`
}

type RemindersQuery struct {
	WindowMinutes int `form:"windowMinutes" validate:"omitempty,min=1,max=1440"`
}

// ActivityResponse adds the derived reporting fields to the stored activity.
type ActivityResponse struct {
	domain.Activity
	Status    domain.Status `json:"status"`
	IsOverdue bool          `json:"isOverdue"`
}

func NewActivityResponse(a domain.Activity, now time.Time) ActivityResponse {
	return ActivityResponse{
		Activity:  a,
		Status:    a.ReportedStatus(now),
		IsOverdue: a.IsOverdue(now),
	}
}

func NewActivityResponses(items []domain.Activity, now time.Time) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, NewActivityResponse(a, now))
	}
	return out
}
