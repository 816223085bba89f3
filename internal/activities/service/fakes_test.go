package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"crm_backend/internal/activities/domain"
	"crm_backend/internal/activities/repository"
	"crm_backend/internal/events"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu         sync.Mutex
	activities map[uuid.UUID]domain.Activity
	conflicts  int
	spawns     int
	// spawnErrs makes the next n SpawnFollowUp calls fail.
	spawnErrs  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{activities: make(map[uuid.UUID]domain.Activity)}
}

func (f *fakeRepo) Create(_ context.Context, a *domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities[a.ID] = *a
	return nil
}

func (f *fakeRepo) Save(_ context.Context, a *domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.activities[a.ID]
	if !ok || stored.TenantID != a.TenantID || stored.DeletedAt != nil {
		return repository.ErrNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		stored.Version++
		f.activities[a.ID] = stored
		return repository.ErrConflict
	}
	if stored.Version != a.Version {
		return repository.ErrConflict
	}
	a.Version++
	// follow_up_created is owned by SpawnFollowUp.
	a.FollowUpCreated = stored.FollowUpCreated
	f.activities[a.ID] = *a
	return nil
}

func (f *fakeRepo) SpawnFollowUp(_ context.Context, parent *domain.Activity, child *domain.Activity) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.spawnErrs > 0 {
		f.spawnErrs--
		return false, errors.New("spawn transaction aborted")
	}
	stored, ok := f.activities[parent.ID]
	if !ok || stored.FollowUpCreated || stored.DeletedAt != nil {
		return false, nil
	}
	stored.FollowUpCreated = true
	stored.Version++
	f.activities[parent.ID] = stored
	f.activities[child.ID] = *child
	f.spawns++

	parent.FollowUpCreated = true
	parent.Version = stored.Version
	return true, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok || a.TenantID != tenantID || a.DeletedAt != nil {
		return domain.Activity{}, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) ListByLead(_ context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Activity, error) {
	return f.filter(tenantID, func(a domain.Activity) bool { return a.LeadID == leadID }), nil
}

func (f *fakeRepo) ListOverdue(_ context.Context, p repository.ScheduleParams) ([]domain.Activity, error) {
	return f.filter(p.TenantID, func(a domain.Activity) bool {
		return open(a) && assigned(a, p.AssignedTo) && a.DueDate != nil && a.DueDate.Before(p.Now)
	}), nil
}

func (f *fakeRepo) ListUpcoming(_ context.Context, p repository.ScheduleParams) ([]domain.Activity, error) {
	return f.filter(p.TenantID, func(a domain.Activity) bool {
		return open(a) && assigned(a, p.AssignedTo) && a.DueDate != nil && !a.DueDate.Before(p.Now) && !a.DueDate.After(p.Until)
	}), nil
}

func (f *fakeRepo) ListNeedingReminders(_ context.Context, tenantID uuid.UUID, until time.Time) ([]domain.Activity, error) {
	return f.filter(tenantID, func(a domain.Activity) bool { return reminderDue(a, until) }), nil
}

func (f *fakeRepo) ListDueReminders(_ context.Context, until time.Time, limit int) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Activity
	for _, a := range f.activities {
		if a.DeletedAt == nil && reminderDue(a, until) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkReminderSent(_ context.Context, id uuid.UUID, tenantID uuid.UUID, sentAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok || a.TenantID != tenantID || a.DeletedAt != nil || a.Reminder.Sent {
		return false, nil
	}
	a.MarkReminderSent(sentAt)
	a.Version++
	f.activities[id] = a
	return true, nil
}

func (f *fakeRepo) filter(tenantID uuid.UUID, keep func(domain.Activity) bool) []domain.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Activity, 0)
	for _, a := range f.activities {
		if a.TenantID == tenantID && a.DeletedAt == nil && keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (f *fakeRepo) children(parentID uuid.UUID) []domain.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Activity
	for _, a := range f.activities {
		if a.FollowUpFrom != nil && *a.FollowUpFrom == parentID {
			out = append(out, a)
		}
	}
	return out
}

func open(a domain.Activity) bool {
	return !a.IsCompleted && a.Status != domain.StatusCancelled
}

func assigned(a domain.Activity, to *uuid.UUID) bool {
	return to == nil || (a.AssignedTo != nil && *a.AssignedTo == *to)
}

func reminderDue(a domain.Activity, until time.Time) bool {
	return open(a) && a.Reminder.Enabled && !a.Reminder.Sent && a.Reminder.RemindAt != nil && !a.Reminder.RemindAt.After(until)
}

type directory struct {
	ids map[uuid.UUID]bool
}

func newDirectory(ids ...uuid.UUID) *directory {
	d := &directory{ids: make(map[uuid.UUID]bool)}
	for _, id := range ids {
		d.ids[id] = true
	}
	return d
}

func (d *directory) LeadExists(_ context.Context, _ uuid.UUID, id uuid.UUID) (bool, error) {
	return d.ids[id], nil
}

func (d *directory) UserExists(_ context.Context, _ uuid.UUID, id uuid.UUID) (bool, error) {
	return d.ids[id], nil
}

type recorder struct {
	mu       sync.Mutex
	touches  []ActivityTouch
	meetings int
}

func (r *recorder) OnActivityCreated(_ context.Context, _ uuid.UUID, _ uuid.UUID, touch ActivityTouch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches = append(r.touches, touch)
	return nil
}

func (r *recorder) OnMeetingCompleted(context.Context, uuid.UUID, uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings++
	return nil
}

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

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}
