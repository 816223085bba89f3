package management

import (
	"context"
	"sort"
	"sync"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/scoring"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu    sync.Mutex
	leads map[uuid.UUID]domain.Lead

	// conflicts makes the next n Save calls fail with ErrConflict.
	conflicts int
	saves     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{leads: make(map[uuid.UUID]domain.Lead)}
}

func (f *fakeRepo) Create(_ context.Context, lead *domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.leads {
		if existing.TenantID == lead.TenantID && existing.Email == lead.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.leads[lead.ID] = clone(*lead)
	return nil
}

func (f *fakeRepo) Save(_ context.Context, lead *domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++

	stored, ok := f.leads[lead.ID]
	if !ok || stored.TenantID != lead.TenantID {
		return repository.ErrNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		// Simulate another writer bumping the row.
		stored.Version++
		f.leads[lead.ID] = stored
		return repository.ErrConflict
	}
	if stored.Version != lead.Version {
		return repository.ErrConflict
	}
	for id, other := range f.leads {
		if id != lead.ID && other.TenantID == lead.TenantID && other.Email == lead.Email {
			return repository.ErrDuplicateEmail
		}
	}
	lead.Version++
	lead.UpdatedAt = time.Now().UTC()
	f.leads[lead.ID] = clone(*lead)
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok || lead.TenantID != tenantID {
		return domain.Lead{}, repository.ErrNotFound
	}
	return clone(lead), nil
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string, tenantID uuid.UUID) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lead := range f.leads {
		if lead.TenantID == tenantID && lead.Email == domain.NormalizeEmail(email) {
			return clone(lead), nil
		}
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (f *fakeRepo) Exists(_ context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	return ok && lead.TenantID == tenantID && !lead.IsDeleted, nil
}

func (f *fakeRepo) List(_ context.Context, params repository.ListParams) ([]domain.Lead, int, error) {
	all := f.filter(func(l domain.Lead) bool { return l.TenantID == params.TenantID && !l.IsDeleted })
	total := len(all)
	end := min(params.Offset+params.Limit, total)
	if params.Offset >= total {
		return []domain.Lead{}, total, nil
	}
	return all[params.Offset:end], total, nil
}

func (f *fakeRepo) ListHot(_ context.Context, tenantID uuid.UUID, limit int) ([]domain.Lead, error) {
	hot := f.filter(func(l domain.Lead) bool { return l.TenantID == tenantID && l.IsHot() })
	sort.Slice(hot, func(i, j int) bool { return hot[i].LeadScore > hot[j].LeadScore })
	if len(hot) > limit {
		hot = hot[:limit]
	}
	return hot, nil
}

func (f *fakeRepo) ListFollowUp(_ context.Context, tenantID uuid.UUID, horizon time.Time) ([]domain.Lead, error) {
	due := f.filter(func(l domain.Lead) bool { return l.TenantID == tenantID && l.DueForFollowUp(horizon) })
	sort.Slice(due, func(i, j int) bool { return due[i].NextFollowUp.Before(*due[j].NextFollowUp) })
	return due, nil
}

func (f *fakeRepo) filter(keep func(domain.Lead) bool) []domain.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Lead, 0)
	for _, lead := range f.leads {
		if keep(lead) {
			out = append(out, clone(lead))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// put stores a lead directly, bypassing the service.
func (f *fakeRepo) put(lead domain.Lead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads[lead.ID] = clone(lead)
}

func clone(l domain.Lead) domain.Lead {
	l.Tags = append([]string(nil), l.Tags...)
	l.StageHistory = append([]domain.StageChange(nil), l.StageHistory...)
	l.Conversion.Reasons = append([]string(nil), l.Conversion.Reasons...)
	return l
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

func (b *recordingBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, 0)
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

var _ Repository = (*fakeRepo)(nil)

// hotLead builds a stored lead whose score lands on the hot side.
func hotLead(tenantID uuid.UUID, email string, createdAt time.Time) domain.Lead {
	lead := domain.Lead{
		TenantID:  tenantID,
		FirstName: "Hot",
		LastName:  "Lead",
		Email:     email,
		Company:   domain.Company{Name: "Acme"},
		BANT:      domain.BANT{Budget: 10, Authority: 10, Need: 10, Timeline: 10},
	}
	lead.Initialize(nil, createdAt)
	if !scoring.IsHot(lead.LeadScore) {
		lead.Engagement.MeetingAttendance = 10
		lead.Rescore()
	}
	return lead
}
