package scheduler

import (
	"context"
	"fmt"
	"time"

	"crm_backend/internal/activities/domain"
	"crm_backend/internal/events"
	"crm_backend/platform/apperr"
	"crm_backend/platform/config"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ActivityStore is what the worker needs to re-check and settle a reminder.
type ActivityStore interface {
	GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (domain.Activity, error)
	MarkReminderSent(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (bool, error)
	Now() time.Time
}

// ReminderHandler processes activities.reminder tasks.
type ReminderHandler struct {
	store ActivityStore
	bus   events.Bus
	log   *logger.Logger
}

func NewReminderHandler(store ActivityStore, bus events.Bus, log *logger.Logger) *ReminderHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ReminderHandler{store: store, bus: bus, log: log}
}

// ProcessTask re-loads the activity and publishes ActivityReminderDue once.
// Activities that were completed, cancelled, deleted or moved since the task
// was enqueued are skipped. Delivery is at most once: the reminder is marked
// sent before the event goes out.
func (h *ReminderHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseActivityReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	activityID, err := uuid.Parse(payload.ActivityID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	a, err := h.store.GetByID(ctx, tenantID, activityID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !reminderStillDue(a, h.store.Now()) {
		return nil
	}

	marked, err := h.store.MarkReminderSent(ctx, tenantID, activityID)
	if err != nil {
		return err
	}
	if !marked {
		return nil
	}

	var due time.Time
	if a.DueDate != nil {
		due = *a.DueDate
	}
	if h.bus != nil {
		h.bus.Publish(ctx, events.ActivityReminderDue{
			BaseEvent:  events.NewBaseEvent(),
			ActivityID: a.ID,
			LeadID:     a.LeadID,
			TenantID:   a.TenantID,
			AssignedTo: a.AssignedTo,
			Subject:    a.Subject,
			DueDate:    due,
		})
	}
	h.log.Info("activity reminder sent", "activityId", a.ID, "tenantId", a.TenantID)
	return nil
}

// reminderStillDue tolerates a small early run; a reminder pushed further out
// by a reschedule is picked up again by a later sweep.
func reminderStillDue(a domain.Activity, now time.Time) bool {
	if a.IsCompleted || a.Status == domain.StatusCompleted || a.Status == domain.StatusCancelled {
		return false
	}
	if !a.Reminder.Enabled || a.Reminder.Sent || a.Reminder.RemindAt == nil {
		return false
	}
	return !a.Reminder.RemindAt.After(now.Add(time.Minute))
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, handler *ReminderHandler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskActivityReminder, handler)

	return &Worker{server: server, mux: mux, log: log}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

var _ asynq.Handler = (*ReminderHandler)(nil)
