package scheduler

import (
	"context"
	"time"

	"crm_backend/internal/activities/domain"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"

	"github.com/robfig/cron/v3"
)

const (
	defaultLookahead = 15 * time.Minute
	sweepBatchSize   = 200
)

// ReminderSource lists reminders due across tenants.
type ReminderSource interface {
	DueReminders(ctx context.Context, window time.Duration, limit int) ([]domain.Activity, error)
	Now() time.Time
}

// ReminderSweep enqueues a task for every reminder due inside the look-ahead
// window. Tasks run at the reminder time; late reminders run immediately.
type ReminderSweep struct {
	source    ReminderSource
	scheduler ReminderScheduler
	lookahead time.Duration
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewReminderSweep(source ReminderSource, scheduler ReminderScheduler, lookahead time.Duration, log *logger.Logger) *ReminderSweep {
	if lookahead <= 0 {
		lookahead = defaultLookahead
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ReminderSweep{
		source:    source,
		scheduler: scheduler,
		lookahead: lookahead,
		log:       log,
	}
}

func (s *ReminderSweep) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// RunOnce performs one sweep and returns how many tasks were enqueued.
func (s *ReminderSweep) RunOnce(ctx context.Context) (int, error) {
	due, err := s.source.DueReminders(ctx, s.lookahead, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	now := s.source.Now()
	enqueued := 0
	for _, a := range due {
		if a.Reminder.RemindAt == nil {
			continue
		}
		runAt := *a.Reminder.RemindAt
		if runAt.Before(now) {
			runAt = now
		}

		ok, err := s.scheduler.ScheduleActivityReminder(ctx, ActivityReminderPayload{
			ActivityID: a.ID.String(),
			TenantID:   a.TenantID.String(),
			RemindAt:   *a.Reminder.RemindAt,
		}, runAt)
		if err != nil {
			s.log.Warn("reminder enqueue failed", "activityId", a.ID, "error", err)
			continue
		}
		if ok {
			enqueued++
			s.metrics.ReminderEnqueued()
		}
	}
	if enqueued > 0 {
		s.log.Info("reminders enqueued", "count", enqueued, "due", len(due))
	}
	return enqueued, nil
}

// Start runs the sweep on the cron spec until ctx is done. Overlapping runs
// are skipped.
func (s *ReminderSweep) Start(ctx context.Context, spec string) error {
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("reminder sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
