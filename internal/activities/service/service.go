// Package service implements activity scheduling and the activity state
// machine on top of the version-checked repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/activities/domain"
	"crm_backend/internal/activities/repository"
	"crm_backend/internal/activities/transport"
	"crm_backend/internal/events"
	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/sanitize"
	"crm_backend/platform/validator"

	"github.com/google/uuid"
)

const (
	maxWriteAttempts      = 3
	defaultUpcomingDays   = 7
	defaultReminderWindow = 15 * time.Minute

	msgActivityNotFound = "activity not found"
	msgActivityConflict = "activity was modified concurrently, please retry"
	msgLeadNotFound     = "lead not found"
	msgAssigneeNotFound = "assigned user not found"
)

// Repository defines the data access interface needed by the service.
type Repository interface {
	repository.ActivityReader
	repository.ActivityWriter
	repository.ReminderStore
}

type Service struct {
	repo     Repository
	leads    LeadDirectory
	users    UserDirectory
	recorder LeadActivityRecorder
	bus      events.Bus
	val      *validator.Validator
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(repo Repository, leads LeadDirectory, users UserDirectory, recorder LeadActivityRecorder, bus events.Bus, val *validator.Validator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		repo:     repo,
		leads:    leads,
		users:    users,
		recorder: recorder,
		bus:      bus,
		val:      val,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock replaces time.Now, mainly for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Now is the service clock, used to derive reported statuses.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// Create stores a new activity after checking the lead and the assignee.
// The owning lead is notified once, then any owed follow-up is spawned.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, req transport.CreateActivityRequest) (domain.Activity, error) {
	if err := s.validate(req); err != nil {
		return domain.Activity{}, err
	}
	if err := s.checkLead(ctx, tenantID, req.LeadID); err != nil {
		return domain.Activity{}, err
	}
	if req.AssignedTo != nil {
		if err := s.checkAssignee(ctx, tenantID, *req.AssignedTo); err != nil {
			return domain.Activity{}, err
		}
	}

	a := domain.Activity{
		TenantID:         tenantID,
		LeadID:           req.LeadID,
		Type:             domain.Type(req.Type),
		Subject:          req.Subject,
		Description:      sanitize.Text(req.Description),
		Priority:         domain.Priority(req.Priority),
		DueDate:          utcPtr(req.DueDate),
		ScheduledDate:    utcPtr(req.ScheduledDate),
		StartTime:        utcPtr(req.StartTime),
		EndTime:          utcPtr(req.EndTime),
		DurationMinutes:  req.DurationMinutes,
		Reminder:         domain.Reminder{Enabled: req.ReminderEnabled, RemindAt: utcPtr(req.RemindAt)},
		RequiresFollowUp: req.RequiresFollowUp,
		FollowUpDate:     utcPtr(req.FollowUpDate),
		AssignedTo:       req.AssignedTo,
		CreatedBy:        &actorID,
	}
	a.Initialize(s.Now())

	if err := s.repo.Create(ctx, &a); err != nil {
		return domain.Activity{}, mapRepoError(err)
	}
	s.notifyCreated(ctx, a)
	s.spawnFollowUp(ctx, &a)
	return a, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (domain.Activity, error) {
	a, err := s.repo.GetByID(ctx, id, tenantID)
	if err != nil {
		return domain.Activity{}, mapRepoError(err)
	}
	return a, nil
}

// Update applies a partial update. Completion, cancellation and due date
// changes have their own operations.
func (s *Service) Update(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.UpdateActivityRequest) (domain.Activity, error) {
	if err := s.validate(req); err != nil {
		return domain.Activity{}, err
	}
	if req.AssignedTo.Set && req.AssignedTo.Value != nil {
		if err := s.checkAssignee(ctx, tenantID, *req.AssignedTo.Value); err != nil {
			return domain.Activity{}, err
		}
	}

	return s.mutate(ctx, tenantID, id, func(a *domain.Activity) error {
		return applyUpdate(a, req)
	})
}

// Complete marks the activity completed. The first completion publishes
// ActivityCompleted, and a completed meeting counts as attended on the lead.
func (s *Service) Complete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.CompleteActivityRequest) (domain.Activity, error) {
	if err := s.validate(req); err != nil {
		return domain.Activity{}, err
	}

	var first bool
	a, err := s.mutate(ctx, tenantID, id, func(a *domain.Activity) error {
		first = !a.IsCompleted
		return a.Complete(actorID, sanitize.Text(req.Notes), s.Now())
	})
	if err != nil {
		return domain.Activity{}, err
	}
	if first {
		s.afterCompletion(ctx, a)
	}
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.CancelActivityRequest) (domain.Activity, error) {
	if err := s.validate(req); err != nil {
		return domain.Activity{}, err
	}

	a, err := s.mutate(ctx, tenantID, id, func(a *domain.Activity) error {
		return a.Cancel(actorID, req.Reason, s.Now())
	})
	if err != nil {
		return domain.Activity{}, err
	}
	s.metrics.Transition("activity.cancelled")
	return a, nil
}

func (s *Service) Reschedule(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.RescheduleActivityRequest) (domain.Activity, error) {
	if err := s.validate(req); err != nil {
		return domain.Activity{}, err
	}

	a, err := s.mutate(ctx, tenantID, id, func(a *domain.Activity) error {
		return a.Reschedule(req.DueDate.UTC(), req.Reason, &actorID, s.Now())
	})
	if err != nil {
		return domain.Activity{}, err
	}
	s.metrics.Transition("activity.rescheduled")
	return a, nil
}

// SetOutcome records the result. Final results complete the activity with
// the same side effects as Complete.
func (s *Service) SetOutcome(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, actorID uuid.UUID, req transport.SetOutcomeRequest) (domain.Activity, error) {
	if err := s.validate(req); err != nil {
		return domain.Activity{}, err
	}

	var completedNow bool
	a, err := s.mutate(ctx, tenantID, id, func(a *domain.Activity) error {
		wasCompleted := a.IsCompleted
		if err := a.SetOutcome(domain.OutcomeResult(req.Result), sanitize.Text(req.Notes), domain.Sentiment(req.Sentiment), actorID, s.Now()); err != nil {
			return err
		}
		completedNow = !wasCompleted && a.IsCompleted
		return nil
	})
	if err != nil {
		return domain.Activity{}, err
	}
	if completedNow {
		s.afterCompletion(ctx, a)
	}
	return a, nil
}

// Delete soft-deletes the activity.
func (s *Service) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	_, err := s.mutate(ctx, tenantID, id, func(a *domain.Activity) error {
		a.MarkDeleted(s.Now())
		return nil
	})
	return err
}

// TimelineByLead returns the lead's activities, newest first.
func (s *Service) TimelineByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Activity, error) {
	items, err := s.repo.ListByLead(ctx, tenantID, leadID)
	if err != nil {
		return nil, fmt.Errorf("list lead activities: %w", err)
	}
	return items, nil
}

func (s *Service) ListOverdue(ctx context.Context, tenantID uuid.UUID, assignedTo *uuid.UUID) ([]domain.Activity, error) {
	items, err := s.repo.ListOverdue(ctx, repository.ScheduleParams{
		TenantID:   tenantID,
		AssignedTo: assignedTo,
		Now:        s.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("list overdue activities: %w", err)
	}
	return items, nil
}

// ListUpcoming returns open activities due within the next days.
func (s *Service) ListUpcoming(ctx context.Context, tenantID uuid.UUID, assignedTo *uuid.UUID, days int) ([]domain.Activity, error) {
	if days <= 0 {
		days = defaultUpcomingDays
	}
	now := s.Now()
	items, err := s.repo.ListUpcoming(ctx, repository.ScheduleParams{
		TenantID:   tenantID,
		AssignedTo: assignedTo,
		Now:        now,
		Until:      now.AddDate(0, 0, days),
	})
	if err != nil {
		return nil, fmt.Errorf("list upcoming activities: %w", err)
	}
	return items, nil
}

// ListNeedingReminders returns activities whose reminder falls due within
// window and has not been sent.
func (s *Service) ListNeedingReminders(ctx context.Context, tenantID uuid.UUID, window time.Duration) ([]domain.Activity, error) {
	if window <= 0 {
		window = defaultReminderWindow
	}
	items, err := s.repo.ListNeedingReminders(ctx, tenantID, s.Now().Add(window))
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return items, nil
}

// DueReminders lists reminders due across all tenants for the sweep.
func (s *Service) DueReminders(ctx context.Context, window time.Duration, limit int) ([]domain.Activity, error) {
	items, err := s.repo.ListDueReminders(ctx, s.Now().Add(window), limit)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return items, nil
}

// MarkReminderSent flags the reminder. It reports false when another worker
// got there first.
func (s *Service) MarkReminderSent(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (bool, error) {
	marked, err := s.repo.MarkReminderSent(ctx, id, tenantID, s.Now())
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	return marked, nil
}

// mutate loads the activity, applies fn and saves with a version check,
// retrying on conflict. Any follow-up still owed after the save is spawned.
func (s *Service) mutate(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, fn func(*domain.Activity) error) (domain.Activity, error) {
	for attempt := 1; ; attempt++ {
		a, err := s.repo.GetByID(ctx, id, tenantID)
		if err != nil {
			return domain.Activity{}, mapRepoError(err)
		}

		if err := fn(&a); err != nil {
			return domain.Activity{}, mapDomainError(err)
		}

		err = s.repo.Save(ctx, &a)
		if err == nil {
			s.spawnFollowUp(ctx, &a)
			return a, nil
		}
		if errors.Is(err, repository.ErrConflict) && attempt < maxWriteAttempts {
			s.metrics.Conflict("activity")
			s.log.Debug("retrying activity write after conflict", "activityId", id, "attempt", attempt)
			continue
		}
		return domain.Activity{}, mapRepoError(err)
	}
}

// spawnFollowUp runs after the activity is stored, so a failure is only
// logged. The guard flag stays unset and the next save spawns it.
func (s *Service) spawnFollowUp(ctx context.Context, a *domain.Activity) {
	if !a.NeedsFollowUpSpawn() {
		return
	}

	child := a.NewFollowUp(s.Now())
	spawned, err := s.repo.SpawnFollowUp(ctx, a, &child)
	if err != nil {
		s.log.Error("spawning follow-up activity failed", "activityId", a.ID, "error", err)
		return
	}
	if !spawned {
		return
	}

	s.metrics.Transition("activity.follow_up_spawned")
	s.log.Info("follow-up activity created", "activityId", a.ID, "followUpId", child.ID)
	s.notifyCreated(ctx, child)
}

func (s *Service) notifyCreated(ctx context.Context, a domain.Activity) {
	touch := ActivityTouch{
		ActivityID:   a.ID,
		ActivityType: string(a.Type),
		OccurredAt:   a.CreatedAt,
		DueDate:      a.DueDate,
	}
	if err := s.recorder.OnActivityCreated(ctx, a.TenantID, a.LeadID, touch); err != nil {
		s.log.Warn("recording activity on lead failed", "activityId", a.ID, "leadId", a.LeadID, "error", err)
	}
}

func (s *Service) afterCompletion(ctx context.Context, a domain.Activity) {
	s.metrics.Transition("activity.completed")
	if a.Type == domain.TypeMeeting {
		if err := s.recorder.OnMeetingCompleted(ctx, a.TenantID, a.LeadID); err != nil {
			s.log.Warn("recording meeting attendance failed", "activityId", a.ID, "leadId", a.LeadID, "error", err)
		}
	}
	s.bus.Publish(ctx, events.ActivityCompleted{
		BaseEvent:  events.NewBaseEvent(),
		ActivityID: a.ID,
		LeadID:     a.LeadID,
		TenantID:   a.TenantID,
		Type:       string(a.Type),
		Outcome:    string(a.Outcome.Result),
	})
}

func (s *Service) checkLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) error {
	ok, err := s.leads.LeadExists(ctx, tenantID, leadID)
	if err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !ok {
		return apperr.Validation(msgLeadNotFound)
	}
	return nil
}

func (s *Service) checkAssignee(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) error {
	ok, err := s.users.UserExists(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("check assignee: %w", err)
	}
	if !ok {
		return apperr.Validation(msgAssigneeNotFound)
	}
	return nil
}

func (s *Service) validate(req any) error {
	if err := s.val.Struct(req); err != nil {
		return apperr.Validation("validation failed").WithDetails(validator.Describe(err))
	}
	return nil
}

func applyUpdate(a *domain.Activity, req transport.UpdateActivityRequest) error {
	if req.Status != nil {
		if err := a.SetStatus(domain.Status(*req.Status)); err != nil {
			return err
		}
	}
	if req.Subject != nil {
		a.Subject = *req.Subject
	}
	if req.Description != nil {
		a.Description = sanitize.Text(*req.Description)
	}
	if req.Priority != nil {
		a.Priority = domain.Priority(*req.Priority)
	}
	if req.ScheduledDate != nil {
		a.ScheduledDate = utcPtr(req.ScheduledDate)
	}
	if req.StartTime != nil {
		a.StartTime = utcPtr(req.StartTime)
	}
	if req.EndTime != nil {
		a.EndTime = utcPtr(req.EndTime)
	}
	if req.DurationMinutes != nil {
		a.DurationMinutes = *req.DurationMinutes
	}
	if req.ReminderEnabled != nil {
		a.Reminder.Enabled = *req.ReminderEnabled
		if a.Reminder.Enabled && a.Reminder.RemindAt == nil && a.DueDate != nil {
			at := a.DueDate.Add(-domain.DefaultReminderLead)
			a.Reminder.RemindAt = &at
		}
	}
	if req.RequiresFollowUp != nil {
		a.RequiresFollowUp = *req.RequiresFollowUp
	}
	if req.FollowUpDate != nil {
		a.FollowUpDate = utcPtr(req.FollowUpDate)
	}
	if req.AssignedTo.Set {
		a.AssignedTo = req.AssignedTo.Value
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, domain.ErrCompleted):
		return apperr.State(err.Error())
	case errors.Is(err, domain.ErrInvalidOutcome), errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrNoDueDate):
		return apperr.Validation(err.Error())
	default:
		return err
	}
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(msgActivityNotFound)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict(msgActivityConflict)
	default:
		if _, ok := apperr.As(err); ok {
			return err
		}
		return fmt.Errorf("activity store: %w", err)
	}
}
