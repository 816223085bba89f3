package notification

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/notification/inapp"
	"crm_backend/platform/apperr"
	platformevents "crm_backend/platform/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu    sync.Mutex
	items []inapp.Notification
}

func (s *memoryStore) Create(_ context.Context, n *inapp.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, *n)
	return nil
}

func (s *memoryStore) owned(tenantID, userID uuid.UUID) []int {
	var idx []int
	for i, n := range s.items {
		if n.TenantID == tenantID && n.UserID == userID {
			idx = append(idx, i)
		}
	}
	return idx
}

func (s *memoryStore) List(_ context.Context, tenantID, userID uuid.UUID, limit, offset int) ([]inapp.Notification, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inapp.Notification
	for _, i := range s.owned(tenantID, userID) {
		out = append(out, s.items[i])
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	total := len(out)
	if offset >= total {
		return []inapp.Notification{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (s *memoryStore) CountUnread(_ context.Context, tenantID, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, i := range s.owned(tenantID, userID) {
		if !s.items[i].IsRead {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) MarkRead(_ context.Context, tenantID, userID, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.owned(tenantID, userID) {
		if s.items[i].ID == id {
			s.items[i].IsRead = true
			s.items[i].ReadAt = &at
			return nil
		}
	}
	return apperr.NotFound("notification not found")
}

func (s *memoryStore) MarkAllRead(_ context.Context, tenantID, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.owned(tenantID, userID) {
		s.items[i].IsRead = true
		s.items[i].ReadAt = &at
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, tenantID, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.owned(tenantID, userID) {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("notification not found")
}

func setup(t *testing.T) (*Module, *memoryStore, *platformevents.InMemoryBus) {
	t.Helper()
	store := &memoryStore{}
	svc := inapp.NewService(store, nil)
	svc.SetClock(func() time.Time { return time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC) })
	m := newModule(svc, nil)
	bus := platformevents.NewInMemoryBus(nil)
	m.RegisterHandlers(bus)
	return m, store, bus
}

func TestReminderNotifiesAssignee(t *testing.T) {
	_, store, bus := setup(t)
	tenant, user, activity := uuid.New(), uuid.New(), uuid.New()
	due := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

	require.NoError(t, bus.PublishSync(context.Background(), events.ActivityReminderDue{
		BaseEvent:  events.NewBaseEvent(),
		ActivityID: activity,
		TenantID:   tenant,
		AssignedTo: &user,
		Subject:    "Demo call",
		DueDate:    due,
	}))

	require.Len(t, store.items, 1)
	n := store.items[0]
	assert.Equal(t, "Reminder: Demo call", n.Title)
	assert.Equal(t, "Due Mon 3 Jun 09:30 UTC.", n.Content)
	assert.Equal(t, user, n.UserID)
	assert.Equal(t, tenant, n.TenantID)
	assert.Equal(t, &activity, n.ResourceID)
	assert.Equal(t, "activity", n.ResourceType)
	assert.Equal(t, inapp.CategoryWarning, n.Category)
}

func TestEventsWithoutRecipientAreSkipped(t *testing.T) {
	_, store, bus := setup(t)
	ctx := context.Background()

	require.NoError(t, bus.PublishSync(ctx, events.ActivityReminderDue{ActivityID: uuid.New(), TenantID: uuid.New(), Subject: "x"}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadConverted{LeadID: uuid.New(), TenantID: uuid.New(), FirstConversion: true}))
	require.NoError(t, bus.PublishSync(ctx, events.DocumentSigned{DocumentID: uuid.New(), TenantID: uuid.New()}))

	assert.Empty(t, store.items)
}

func TestConversionAndSignatureNotifications(t *testing.T) {
	_, store, bus := setup(t)
	ctx := context.Background()
	tenant, owner, creator := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, bus.PublishSync(ctx, events.LeadConverted{
		LeadID: uuid.New(), TenantID: tenant, ConversionType: "customer", Value: 1250, Owner: &owner, FirstConversion: true,
	}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadConverted{
		LeadID: uuid.New(), TenantID: tenant, ConversionType: "customer", Value: 10, Owner: &owner, FirstConversion: false,
	}))
	require.NoError(t, bus.PublishSync(ctx, events.DocumentSigned{DocumentID: uuid.New(), TenantID: tenant, CreatedBy: &creator}))

	require.Len(t, store.items, 2)
	assert.Equal(t, "Converted as customer with a value of 1250.00.", store.items[0].Content)
	assert.Equal(t, owner, store.items[0].UserID)
	assert.Equal(t, "Document signed", store.items[1].Title)
	assert.Equal(t, creator, store.items[1].UserID)
}

func TestInboxReadFlow(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()
	tenant, user := uuid.New(), uuid.New()
	svc := m.InApp()

	first, err := svc.Send(ctx, inapp.SendParams{TenantID: tenant, UserID: user, Title: "one"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, inapp.SendParams{TenantID: tenant, UserID: user, Title: "two"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, inapp.SendParams{TenantID: uuid.New(), UserID: user, Title: "elsewhere"})
	require.NoError(t, err)

	unread, err := svc.CountUnread(ctx, tenant, user)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	require.NoError(t, svc.MarkRead(ctx, tenant, user, first.ID))
	unread, _ = svc.CountUnread(ctx, tenant, user)
	assert.Equal(t, 1, unread)

	assert.True(t, apperr.Is(svc.MarkRead(ctx, uuid.New(), user, first.ID), apperr.KindNotFound))

	require.NoError(t, svc.MarkAllRead(ctx, tenant, user))
	unread, _ = svc.CountUnread(ctx, tenant, user)
	assert.Zero(t, unread)

	items, total, err := svc.List(ctx, tenant, user, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	require.NoError(t, svc.Delete(ctx, tenant, user, first.ID))
	_, total, _ = svc.List(ctx, tenant, user, 0, 0)
	assert.Equal(t, 1, total)
}

func TestSendValidates(t *testing.T) {
	m, _, _ := setup(t)
	_, err := m.InApp().Send(context.Background(), inapp.SendParams{TenantID: uuid.New(), UserID: uuid.New(), Title: "  "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = m.InApp().Send(context.Background(), inapp.SendParams{Title: "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
