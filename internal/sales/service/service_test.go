package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/sales/domain"
	"crm_backend/internal/sales/repository"
	"crm_backend/internal/sales/transport"
	"crm_backend/platform/apperr"
	"crm_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu    sync.Mutex
	sales []domain.Sale
	err   error

	// leadSources stands in for the leads table the revenue query joins.
	leadSources map[uuid.UUID]string
}

func (f *fakeRepo) Create(_ context.Context, s *domain.Sale) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if s.Source == domain.SourceConversion {
		for _, existing := range f.sales {
			if existing.LeadID == s.LeadID && existing.Source == domain.SourceConversion {
				return repository.ErrDuplicateConversion
			}
		}
	}
	f.sales = append(f.sales, *s)
	return nil
}

func (f *fakeRepo) ListByLead(_ context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Sale{}
	for _, s := range f.sales {
		if s.TenantID == tenantID && s.LeadID == leadID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) SumExpectedRevenue(_ context.Context, tenantID uuid.UUID, filter repository.RevenueFilter) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, s := range f.sales {
		if s.TenantID != tenantID || s.Stage == domain.StageClosedLost {
			continue
		}
		if filter.Since != nil && s.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Owner != nil && (s.Owner == nil || *s.Owner != *filter.Owner) {
			continue
		}
		if filter.LeadSource != "" && f.leadSources[s.LeadID] != filter.LeadSource {
			continue
		}
		total += s.ExpectedRevenue
	}
	return total, nil
}

type leadSet map[uuid.UUID]bool

func (l leadSet) LeadExists(_ context.Context, _ uuid.UUID, id uuid.UUID) (bool, error) {
	return l[id], nil
}

func newService(repo *fakeRepo, leads ...uuid.UUID) *Service {
	set := leadSet{}
	for _, id := range leads {
		set[id] = true
	}
	svc := New(repo, set, validator.New(), nil)
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func TestCreateSale(t *testing.T) {
	repo := &fakeRepo{}
	leadID := uuid.New()
	svc := newService(repo, leadID)

	s, err := svc.Create(context.Background(), uuid.New(), uuid.New(), transport.CreateSaleRequest{
		LeadID:      leadID,
		Title:       "Annual plan",
		Stage:       "negotiation",
		Value:       10000,
		Probability: 70,
	})
	require.NoError(t, err)
	assert.InDelta(t, 7000.0, s.ExpectedRevenue, 1e-9)
	assert.Equal(t, fixedNow, s.CreatedAt)
	assert.Len(t, repo.sales, 1)
}

func TestCreateSaleValidation(t *testing.T) {
	svc := newService(&fakeRepo{})

	_, err := svc.Create(context.Background(), uuid.New(), uuid.New(), transport.CreateSaleRequest{LeadID: uuid.New(), Title: "x", Stage: "won"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(context.Background(), uuid.New(), uuid.New(), transport.CreateSaleRequest{LeadID: uuid.New(), Title: "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func conversion(tenantID, leadID uuid.UUID, value float64, first bool) events.LeadConverted {
	return events.LeadConverted{
		BaseEvent:       events.NewBaseEvent(),
		LeadID:          leadID,
		TenantID:        tenantID,
		ConversionType:  "customer",
		Value:           value,
		FirstConversion: first,
		ConvertedAt:     fixedNow,
	}
}

func TestRecordConversionCreatesClosedWonSaleOnce(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(repo)
	tenantID, leadID := uuid.New(), uuid.New()

	require.NoError(t, svc.Handle(context.Background(), conversion(tenantID, leadID, 8000, true)))
	require.NoError(t, svc.Handle(context.Background(), conversion(tenantID, leadID, 8000, true)))

	require.Len(t, repo.sales, 1)
	assert.Equal(t, domain.StageClosedWon, repo.sales[0].Stage)
	assert.InDelta(t, 8000.0, repo.sales[0].ExpectedRevenue, 1e-9)
}

func TestRecordConversionSkipsZeroValueAndRepeats(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(repo)

	require.NoError(t, svc.RecordConversion(context.Background(), conversion(uuid.New(), uuid.New(), 0, true)))
	require.NoError(t, svc.RecordConversion(context.Background(), conversion(uuid.New(), uuid.New(), 500, false)))
	assert.Empty(t, repo.sales)
}

func TestRecordConversionPropagatesStoreErrors(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	svc := newService(repo)

	err := svc.RecordConversion(context.Background(), conversion(uuid.New(), uuid.New(), 10, true))
	assert.ErrorContains(t, err, "db down")
}

func TestSumExpectedRevenue(t *testing.T) {
	repo := &fakeRepo{}
	leadID := uuid.New()
	tenantID := uuid.New()
	owner := uuid.New()
	svc := newService(repo, leadID)
	ctx := context.Background()

	for _, req := range []transport.CreateSaleRequest{
		{LeadID: leadID, Title: "a", Value: 1000, Probability: 50, Owner: &owner},
		{LeadID: leadID, Title: "b", Value: 2000, Stage: "closed-won"},
		{LeadID: leadID, Title: "c", Value: 9000, Probability: 90, Stage: "closed-lost"},
	} {
		_, err := svc.Create(ctx, tenantID, uuid.New(), req)
		require.NoError(t, err)
	}

	total, err := svc.SumExpectedRevenue(ctx, tenantID, nil, nil, "")
	require.NoError(t, err)
	assert.InDelta(t, 2500.0, total, 1e-9)

	total, err = svc.SumExpectedRevenue(ctx, tenantID, nil, &owner, "")
	require.NoError(t, err)
	assert.InDelta(t, 500.0, total, 1e-9)

	later := fixedNow.Add(time.Hour)
	total, err = svc.SumExpectedRevenue(ctx, tenantID, &later, nil, "")
	require.NoError(t, err)
	assert.Zero(t, total)

	sales, err := svc.ListByLead(ctx, tenantID, leadID)
	require.NoError(t, err)
	assert.Len(t, sales, 3)
}

func TestSumExpectedRevenueByLeadSource(t *testing.T) {
	referral, website := uuid.New(), uuid.New()
	repo := &fakeRepo{leadSources: map[uuid.UUID]string{referral: "referral", website: "website"}}
	tenantID := uuid.New()
	svc := newService(repo, referral, website)
	ctx := context.Background()

	_, err := svc.Create(ctx, tenantID, uuid.New(), transport.CreateSaleRequest{LeadID: referral, Title: "a", Value: 4000, Probability: 50})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tenantID, uuid.New(), transport.CreateSaleRequest{LeadID: website, Title: "b", Value: 1000, Probability: 10})
	require.NoError(t, err)

	total, err := svc.SumExpectedRevenue(ctx, tenantID, nil, nil, "referral")
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, total, 1e-9)

	total, err = svc.SumExpectedRevenue(ctx, tenantID, nil, nil, "")
	require.NoError(t, err)
	assert.InDelta(t, 2100.0, total, 1e-9)

	total, err = svc.SumExpectedRevenue(ctx, tenantID, nil, nil, "trade-show")
	require.NoError(t, err)
	assert.Zero(t, total)
}
