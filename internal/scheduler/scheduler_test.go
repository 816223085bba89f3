package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm_backend/internal/activities/domain"
	"crm_backend/internal/events"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

type stubSource struct {
	due []domain.Activity
	err error
}

func (s stubSource) DueReminders(context.Context, time.Duration, int) ([]domain.Activity, error) {
	return s.due, s.err
}

func (s stubSource) Now() time.Time { return now }

type scheduled struct {
	payload ActivityReminderPayload
	runAt   time.Time
}

type stubScheduler struct {
	calls     []scheduled
	duplicate map[string]bool
	fail      map[string]bool
	taskIDs   map[string]bool
}

func (s *stubScheduler) ScheduleActivityReminder(_ context.Context, p ActivityReminderPayload, runAt time.Time) (bool, error) {
	s.calls = append(s.calls, scheduled{payload: p, runAt: runAt})
	if s.fail[p.ActivityID] {
		return false, errors.New("redis down")
	}
	if s.duplicate[p.ActivityID] {
		return false, nil
	}
	if s.taskIDs == nil {
		s.taskIDs = make(map[string]bool)
	}
	id := ReminderTaskID(p.ActivityID, p.RemindAt)
	if s.taskIDs[id] {
		return false, nil
	}
	s.taskIDs[id] = true
	return true, nil
}

func reminderAt(at *time.Time) domain.Activity {
	due := now.Add(time.Hour)
	return domain.Activity{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		LeadID:   uuid.New(),
		Subject:  "Call back",
		Status:   domain.StatusPending,
		DueDate:  &due,
		Reminder: domain.Reminder{Enabled: true, RemindAt: at},
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestRunOnceEnqueuesAtReminderTime(t *testing.T) {
	future := reminderAt(timePtr(now.Add(10 * time.Minute)))
	late := reminderAt(timePtr(now.Add(-5 * time.Minute)))
	queued := reminderAt(timePtr(now.Add(time.Minute)))
	noTime := reminderAt(nil)

	sched := &stubScheduler{duplicate: map[string]bool{queued.ID.String(): true}}
	sweep := NewReminderSweep(stubSource{due: []domain.Activity{future, late, queued, noTime}}, sched, 0, nil)

	n, err := sweep.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, sched.calls, 3)
	assert.Equal(t, future.ID.String(), sched.calls[0].payload.ActivityID)
	assert.Equal(t, future.TenantID.String(), sched.calls[0].payload.TenantID)
	assert.Equal(t, now.Add(10*time.Minute), sched.calls[0].runAt)
	assert.Equal(t, now, sched.calls[1].runAt)
}

func TestRunOnceRequeuesReminderMovedEarlier(t *testing.T) {
	a := reminderAt(timePtr(now.Add(10 * time.Minute)))
	sched := &stubScheduler{}

	n, err := NewReminderSweep(stubSource{due: []domain.Activity{a}}, sched, 0, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = NewReminderSweep(stubSource{due: []domain.Activity{a}}, sched, 0, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	a.Reminder.RemindAt = timePtr(now.Add(2 * time.Minute))
	n, err = NewReminderSweep(stubSource{due: []domain.Activity{a}}, sched, 0, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, sched.calls, 3)
	assert.Equal(t, now.Add(2*time.Minute), sched.calls[2].runAt)
	assert.Equal(t, now.Add(2*time.Minute), sched.calls[2].payload.RemindAt)
}

func TestRunOnceContinuesPastEnqueueFailure(t *testing.T) {
	a := reminderAt(timePtr(now))
	b := reminderAt(timePtr(now))
	sched := &stubScheduler{fail: map[string]bool{a.ID.String(): true}}

	n, err := NewReminderSweep(stubSource{due: []domain.Activity{a, b}}, sched, time.Minute, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, sched.calls, 2)
}

func TestRunOnceReturnsSourceError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewReminderSweep(stubSource{err: boom}, &stubScheduler{}, time.Minute, nil).RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

type fakeStore struct {
	mu       sync.Mutex
	activity *domain.Activity
	lostRace bool
	marked   int
}

func (f *fakeStore) GetByID(_ context.Context, tenantID uuid.UUID, id uuid.UUID) (domain.Activity, error) {
	if f.activity == nil || f.activity.ID != id || f.activity.TenantID != tenantID {
		return domain.Activity{}, apperr.NotFound("activity not found")
	}
	return *f.activity, nil
}

func (f *fakeStore) MarkReminderSent(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lostRace || f.activity.Reminder.Sent {
		return false, nil
	}
	f.activity.Reminder.Sent = true
	f.marked++
	return true, nil
}

func (f *fakeStore) Now() time.Time { return now }

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func taskFor(t *testing.T, a domain.Activity) *asynq.Task {
	t.Helper()
	task, err := NewActivityReminderTask(ActivityReminderPayload{ActivityID: a.ID.String(), TenantID: a.TenantID.String()})
	require.NoError(t, err)
	return task
}

func TestReminderHandlerPublishesOnce(t *testing.T) {
	assignee := uuid.New()
	a := reminderAt(timePtr(now))
	a.AssignedTo = &assignee
	store := &fakeStore{activity: &a}
	bus := &recordingBus{}
	h := NewReminderHandler(store, bus, nil)

	require.NoError(t, h.ProcessTask(context.Background(), taskFor(t, a)))
	require.NoError(t, h.ProcessTask(context.Background(), taskFor(t, a)))

	assert.Equal(t, 1, store.marked)
	require.Len(t, bus.events, 1)
	due, ok := bus.events[0].(events.ActivityReminderDue)
	require.True(t, ok)
	assert.Equal(t, a.ID, due.ActivityID)
	assert.Equal(t, a.LeadID, due.LeadID)
	assert.Equal(t, &assignee, due.AssignedTo)
	assert.Equal(t, "Call back", due.Subject)
	assert.Equal(t, *a.DueDate, due.DueDate)
}

func TestReminderHandlerSkipsStaleActivities(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*domain.Activity)
	}{
		{"completed", func(a *domain.Activity) { a.Status = domain.StatusCompleted; a.IsCompleted = true }},
		{"cancelled", func(a *domain.Activity) { a.Status = domain.StatusCancelled }},
		{"disabled", func(a *domain.Activity) { a.Reminder.Enabled = false }},
		{"rescheduled later", func(a *domain.Activity) { a.Reminder.RemindAt = timePtr(now.Add(2 * time.Hour)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := reminderAt(timePtr(now))
			tt.modify(&a)
			store := &fakeStore{activity: &a}
			bus := &recordingBus{}

			require.NoError(t, NewReminderHandler(store, bus, nil).ProcessTask(context.Background(), taskFor(t, a)))
			assert.Zero(t, store.marked)
			assert.Empty(t, bus.events)
		})
	}
}

func TestReminderHandlerLostRaceDoesNotPublish(t *testing.T) {
	a := reminderAt(timePtr(now))
	bus := &recordingBus{}
	store := &fakeStore{activity: &a, lostRace: true}

	require.NoError(t, NewReminderHandler(store, bus, nil).ProcessTask(context.Background(), taskFor(t, a)))
	assert.Empty(t, bus.events)
}

func TestReminderHandlerIgnoresDeletedActivity(t *testing.T) {
	a := reminderAt(timePtr(now))
	store := &fakeStore{}
	assert.NoError(t, NewReminderHandler(store, &recordingBus{}, nil).ProcessTask(context.Background(), taskFor(t, a)))
}

func TestReminderHandlerRejectsMalformedPayload(t *testing.T) {
	h := NewReminderHandler(&fakeStore{}, &recordingBus{}, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskActivityReminder, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewActivityReminderTask(ActivityReminderPayload{ActivityID: "nope", TenantID: uuid.NewString()})
	require.NoError(t, err)
	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), asynq.SkipRetry)
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("rediss://:pw@cache.internal:6380/2", false)
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 2, opt.DB)
	require.NotNil(t, opt.TLSConfig)
	assert.False(t, opt.TLSConfig.InsecureSkipVerify)

	opt, err = redisClientOpt("redis://localhost:6379", true)
	require.NoError(t, err)
	require.NotNil(t, opt.TLSConfig)
	assert.True(t, opt.TLSConfig.InsecureSkipVerify)

	opt, err = redisClientOpt("redis://localhost:6379", false)
	require.NoError(t, err)
	assert.Nil(t, opt.TLSConfig)
}

func TestReminderTaskID(t *testing.T) {
	at := time.Unix(1719824400, 0)
	assert.Equal(t, "reminder:abc:1719824400", ReminderTaskID("abc", at))
	assert.Equal(t, ReminderTaskID("abc", at), ReminderTaskID("abc", at.In(time.FixedZone("CEST", 2*3600))))
	assert.NotEqual(t, ReminderTaskID("abc", at), ReminderTaskID("abc", at.Add(-5*time.Minute)))
}
