// Package domain holds the activity state machine. Methods mutate the
// aggregate in memory only; persistence happens in one write afterwards.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultReminderLead is how long before the due date a reminder fires.
const DefaultReminderLead = 15 * time.Minute

var (
	ErrCancelled      = errors.New("activity is cancelled")
	ErrCompleted      = errors.New("activity is already completed")
	ErrInvalidOutcome = errors.New("unknown outcome result")
	ErrInvalidStatus  = errors.New("status cannot be set directly")
	ErrNoDueDate      = errors.New("reschedule requires a new due date")
)

type Type string

const (
	TypeCall     Type = "call"
	TypeEmail    Type = "email"
	TypeMeeting  Type = "meeting"
	TypeTask     Type = "task"
	TypeNote     Type = "note"
	TypeFollowUp Type = "follow-up"
	TypeDemo     Type = "demo"
	TypeProposal Type = "proposal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusDeferred   Status = "deferred"
	StatusWaiting    Status = "waiting"

	// StatusOverdue is never stored; ReportedStatus derives it.
	StatusOverdue Status = "overdue"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// OutcomeResult is the single outcome vocabulary shared with analytics.
type OutcomeResult string

const (
	OutcomeSuccessful        OutcomeResult = "successful"
	OutcomeUnsuccessful      OutcomeResult = "unsuccessful"
	OutcomeNoAnswer          OutcomeResult = "no-answer"
	OutcomeVoicemail         OutcomeResult = "voicemail"
	OutcomeCallbackRequested OutcomeResult = "callback-requested"
	OutcomeInterested        OutcomeResult = "interested"
	OutcomeNotInterested     OutcomeResult = "not-interested"
	OutcomeMeetingScheduled  OutcomeResult = "meeting-scheduled"
	OutcomeProposalRequested OutcomeResult = "proposal-requested"
	OutcomeDocumentViewed    OutcomeResult = "document-viewed"
	OutcomeDealClosed        OutcomeResult = "deal-closed"
	OutcomeRescheduled       OutcomeResult = "rescheduled"
	OutcomeCancelled         OutcomeResult = "cancelled"
)

var outcomeResults = map[OutcomeResult]bool{
	OutcomeSuccessful: true, OutcomeUnsuccessful: true, OutcomeNoAnswer: true, OutcomeVoicemail: true,
	OutcomeCallbackRequested: true, OutcomeInterested: true, OutcomeNotInterested: true,
	OutcomeMeetingScheduled: true, OutcomeProposalRequested: true, OutcomeDocumentViewed: true,
	OutcomeDealClosed: true, OutcomeRescheduled: true, OutcomeCancelled: true,
}

func (r OutcomeResult) Valid() bool {
	return outcomeResults[r]
}

// IsFinal reports whether recording this result completes the activity.
func (r OutcomeResult) IsFinal() bool {
	switch r {
	case OutcomeSuccessful, OutcomeNotInterested, OutcomeDealClosed, OutcomeCancelled:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type Outcome struct {
	Result     OutcomeResult `json:"result,omitempty"`
	Notes      string        `json:"notes,omitempty"`
	Sentiment  Sentiment     `json:"sentiment,omitempty"`
	RecordedAt *time.Time    `json:"recordedAt,omitempty"`
	RecordedBy *uuid.UUID    `json:"recordedBy,omitempty"`
}

type Reminder struct {
	Enabled  bool       `json:"enabled"`
	RemindAt *time.Time `json:"remindAt,omitempty"`
	Sent     bool       `json:"sent"`
	SentAt   *time.Time `json:"sentAt,omitempty"`
}

type Activity struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenantId"`
	LeadID      uuid.UUID `json:"leadId"`
	Type        Type      `json:"type"`
	Subject     string    `json:"subject"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`

	IsCompleted     bool       `json:"isCompleted"`
	CompletedDate   *time.Time `json:"completedDate,omitempty"`
	CompletedBy     *uuid.UUID `json:"completedBy,omitempty"`
	CompletionNotes string     `json:"completionNotes,omitempty"`

	DueDate         *time.Time `json:"dueDate,omitempty"`
	ScheduledDate   *time.Time `json:"scheduledDate,omitempty"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes,omitempty"`

	Outcome  Outcome  `json:"outcome"`
	Reminder Reminder `json:"reminder"`

	RequiresFollowUp bool       `json:"requiresFollowUp"`
	FollowUpDate     *time.Time `json:"followUpDate,omitempty"`
	FollowUpCreated  bool       `json:"followUpCreated"`
	FollowUpFrom     *uuid.UUID `json:"followUpFrom,omitempty"`

	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
	CreatedBy  *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	Version    int        `json:"version"`
}

// Initialize prepares a new activity for its first write.
func (a *Activity) Initialize(now time.Time) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if a.Priority == "" {
		a.Priority = PriorityMedium
	}
	if a.Reminder.Enabled && a.Reminder.RemindAt == nil && a.DueDate != nil {
		at := a.DueDate.Add(-DefaultReminderLead)
		a.Reminder.RemindAt = &at
	}
	if a.StartTime != nil && a.EndTime != nil && a.DurationMinutes == 0 {
		a.DurationMinutes = int(a.EndTime.Sub(*a.StartTime) / time.Minute)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Version = 0
}

// Complete moves the activity to completed. CompletedDate keeps the first
// completion time on repeated calls.
func (a *Activity) Complete(userID uuid.UUID, notes string, now time.Time) error {
	if a.Status == StatusCancelled {
		return ErrCancelled
	}
	a.markCompleted(userID, now)
	if notes = strings.TrimSpace(notes); notes != "" {
		a.CompletionNotes = notes
	}
	return nil
}

func (a *Activity) markCompleted(userID uuid.UUID, now time.Time) {
	a.Status = StatusCompleted
	a.IsCompleted = true
	if a.CompletedDate == nil {
		completed := now
		a.CompletedDate = &completed
	}
	by := userID
	a.CompletedBy = &by
}

// Cancel moves a pending activity to cancelled.
func (a *Activity) Cancel(userID uuid.UUID, reason string, now time.Time) error {
	switch {
	case a.Status == StatusCancelled:
		return ErrCancelled
	case a.IsCompleted:
		return ErrCompleted
	}
	a.Status = StatusCancelled
	a.recordOutcome(OutcomeCancelled, reason, a.Outcome.Sentiment, &userID, now)
	return nil
}

// Reschedule moves the due date and shifts the start and end times by the
// same amount. The reminder is recomputed and marked unsent.
func (a *Activity) Reschedule(newDate time.Time, reason string, userID *uuid.UUID, now time.Time) error {
	switch {
	case a.Status == StatusCancelled:
		return ErrCancelled
	case a.IsCompleted:
		return ErrCompleted
	case newDate.IsZero():
		return ErrNoDueDate
	}

	if a.DueDate != nil {
		delta := newDate.Sub(*a.DueDate)
		a.StartTime = shift(a.StartTime, delta)
		a.EndTime = shift(a.EndTime, delta)
		a.ScheduledDate = shift(a.ScheduledDate, delta)
	}
	due := newDate
	a.DueDate = &due

	remindAt := newDate.Add(-DefaultReminderLead)
	a.Reminder.RemindAt = &remindAt
	a.Reminder.Sent = false
	a.Reminder.SentAt = nil

	if a.Status == StatusDeferred || a.Status == StatusWaiting {
		a.Status = StatusPending
	}
	a.recordOutcome(OutcomeRescheduled, reason, a.Outcome.Sentiment, userID, now)
	return nil
}

// SetOutcome records the result of the activity. Final results complete it.
func (a *Activity) SetOutcome(result OutcomeResult, notes string, sentiment Sentiment, userID uuid.UUID, now time.Time) error {
	if a.Status == StatusCancelled {
		return ErrCancelled
	}
	if !result.Valid() {
		return ErrInvalidOutcome
	}
	a.recordOutcome(result, notes, sentiment, &userID, now)
	if result.IsFinal() {
		a.markCompleted(userID, now)
	}
	return nil
}

func (a *Activity) recordOutcome(result OutcomeResult, notes string, sentiment Sentiment, userID *uuid.UUID, now time.Time) {
	recorded := now
	a.Outcome = Outcome{
		Result:     result,
		Notes:      strings.TrimSpace(notes),
		Sentiment:  sentiment,
		RecordedAt: &recorded,
		RecordedBy: userID,
	}
}

// SetStatus applies a manual status change between the open states.
func (a *Activity) SetStatus(status Status) error {
	switch {
	case a.Status == StatusCancelled:
		return ErrCancelled
	case a.IsCompleted:
		return ErrCompleted
	}
	switch status {
	case StatusPending, StatusInProgress, StatusDeferred, StatusWaiting:
		a.Status = status
		return nil
	}
	return ErrInvalidStatus
}

// IsOverdue is true while the due date has passed and the activity is
// neither completed nor cancelled.
func (a *Activity) IsOverdue(now time.Time) bool {
	return a.DueDate != nil && a.DueDate.Before(now) && !a.IsCompleted && a.Status != StatusCancelled
}

// ReportedStatus is the stored status, or overdue when IsOverdue holds.
func (a *Activity) ReportedStatus(now time.Time) Status {
	if a.IsOverdue(now) {
		return StatusOverdue
	}
	return a.Status
}

// NeedsFollowUpSpawn reports whether a follow-up child is still owed.
func (a *Activity) NeedsFollowUpSpawn() bool {
	return a.RequiresFollowUp && a.FollowUpDate != nil && !a.FollowUpCreated && a.DeletedAt == nil
}

// NewFollowUp builds the child activity owed by NeedsFollowUpSpawn.
func (a *Activity) NewFollowUp(now time.Time) Activity {
	due := *a.FollowUpDate
	parentID := a.ID
	child := Activity{
		TenantID:     a.TenantID,
		LeadID:       a.LeadID,
		Type:         TypeFollowUp,
		Subject:      "Follow-up: " + a.Subject,
		Priority:     a.Priority,
		DueDate:      &due,
		Reminder:     Reminder{Enabled: true},
		FollowUpFrom: &parentID,
		AssignedTo:   a.AssignedTo,
		CreatedBy:    a.CreatedBy,
	}
	child.Initialize(now)
	return child
}

// NeedsReminder reports whether an unsent reminder falls due within window.
func (a *Activity) NeedsReminder(now time.Time, window time.Duration) bool {
	if !a.Reminder.Enabled || a.Reminder.Sent || a.Reminder.RemindAt == nil {
		return false
	}
	if a.IsCompleted || a.Status == StatusCancelled || a.DeletedAt != nil {
		return false
	}
	return !a.Reminder.RemindAt.After(now.Add(window))
}

func (a *Activity) MarkReminderSent(now time.Time) {
	sent := now
	a.Reminder.Sent = true
	a.Reminder.SentAt = &sent
}

func (a *Activity) MarkDeleted(now time.Time) {
	deleted := now
	a.DeletedAt = &deleted
}

func shift(t *time.Time, delta time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	shifted := t.Add(delta)
	return &shifted
}
