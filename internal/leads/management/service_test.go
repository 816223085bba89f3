package management

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crm_backend/internal/events"
	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/transport"
	"crm_backend/platform/apperr"
	"crm_backend/platform/cache"
	"crm_backend/platform/validator"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeRepo, *recordingBus) {
	t.Helper()
	repo := newFakeRepo()
	bus := &recordingBus{}
	svc := New(repo, bus, validator.New(), nil, "NL")
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, repo, bus
}

func validCreate() transport.CreateLeadRequest {
	return transport.CreateLeadRequest{
		FirstName: "Anna",
		LastName:  "de Vries",
		Email:     "  Anna.DeVries@Example.COM ",
		Phone:     "06 12345678",
		Company:   transport.CompanyRequest{Name: "Acme BV"},
		Source:    "referral",
		BANT:      &transport.BANTRequest{Budget: 8, Authority: 8, Need: 8, Timeline: 8},
	}
}

func TestCreate(t *testing.T) {
	svc, _, bus := newTestService(t)
	tenantID, actorID := uuid.New(), uuid.New()

	lead, err := svc.Create(context.Background(), tenantID, actorID, validCreate())
	require.NoError(t, err)

	assert.Equal(t, "anna.devries@example.com", lead.Email)
	assert.Equal(t, "+31612345678", lead.Phone)
	assert.Equal(t, domain.StatusNew, lead.Status)
	assert.Equal(t, domain.StageAwareness, lead.PipelineStage)
	require.Len(t, lead.StageHistory, 1)
	assert.Equal(t, &actorID, lead.StageHistory[0].ChangedBy)
	assert.Equal(t, 80, lead.BANT.OverallScore)
	assert.Equal(t, 48, lead.LeadScore)
	assert.Equal(t, fixedNow, lead.CreatedAt)

	created := bus.named("leads.lead.created")
	require.Len(t, created, 1)
	assert.Equal(t, lead.ID, created[0].(events.LeadCreated).LeadID)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t.Run("missing company name", func(t *testing.T) {
		req := validCreate()
		req.Company.Name = "  "
		_, err := svc.Create(ctx, uuid.New(), uuid.New(), req)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("landline phone", func(t *testing.T) {
		req := validCreate()
		req.Phone = "020 123 4567"
		_, err := svc.Create(ctx, uuid.New(), uuid.New(), req)
		require.True(t, apperr.Is(err, apperr.KindValidation))
		appErr, _ := apperr.As(err)
		assert.Equal(t, "phone must be a mobile number", appErr.Message)
	})

	t.Run("bant out of range", func(t *testing.T) {
		req := validCreate()
		req.BANT = &transport.BANTRequest{Budget: 11}
		_, err := svc.Create(ctx, uuid.New(), uuid.New(), req)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestCreateDuplicateEmailConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	first, err := svc.Create(ctx, tenantID, uuid.New(), validCreate())
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, tenantID, first.ID, uuid.New()))

	// The deleted record still holds the email.
	_, err = svc.Create(ctx, tenantID, uuid.New(), validCreate())
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// Other tenants are unaffected.
	_, err = svc.Create(ctx, uuid.New(), uuid.New(), validCreate())
	assert.NoError(t, err)
}

func TestDeletedLeadKeepsEmailReserved(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	deleted, err := svc.Create(ctx, tenantID, actorID, validCreate())
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, tenantID, deleted.ID, actorID))

	other := validCreate()
	other.Email = "other@example.com"
	live, err := svc.Create(ctx, tenantID, actorID, other)
	require.NoError(t, err)

	email := "anna.devries@example.com"
	_, err = svc.Update(ctx, tenantID, live.ID, actorID, transport.UpdateLeadRequest{Email: &email})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	res, err := svc.BulkImport(ctx, tenantID, actorID, transport.BulkImportRequest{
		Leads: []transport.CreateLeadRequest{validCreate()},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, msgDuplicateEmail, res.Errors[0].Message)

	res, err = svc.BulkImport(ctx, tenantID, actorID, transport.BulkImportRequest{
		Leads:         []transport.CreateLeadRequest{validCreate()},
		UpsertByEmail: true,
	})
	require.NoError(t, err)
	assert.Zero(t, res.Updated)
	require.Len(t, res.Errors, 1)
}

func TestUpdateRecordsStatusAndStageChanges(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	lead, err := svc.Create(ctx, tenantID, actorID, validCreate())
	require.NoError(t, err)

	status, stage := "qualified", "consideration"
	lead, err = svc.Update(ctx, tenantID, lead.ID, actorID, transport.UpdateLeadRequest{
		Status:        &status,
		PipelineStage: &stage,
		StatusNotes:   "discovery call went well",
		BANT:          &transport.BANTRequest{Budget: 10, Authority: 10, Need: 10, Timeline: 10},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusQualified, lead.Status)
	assert.Equal(t, domain.StageConsideration, lead.PipelineStage)
	assert.Len(t, lead.StageHistory, 3)
	assert.Equal(t, 100, lead.BANT.OverallScore)
	assert.Equal(t, 60, lead.LeadScore)

	// Same status again adds nothing.
	lead, err = svc.Update(ctx, tenantID, lead.ID, actorID, transport.UpdateLeadRequest{Status: &status})
	require.NoError(t, err)
	assert.Len(t, lead.StageHistory, 3)
}

func TestConvertIsIdempotentForHistory(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	lead, err := svc.Create(ctx, tenantID, actorID, validCreate())
	require.NoError(t, err)

	first, err := svc.Convert(ctx, tenantID, lead.ID, actorID, transport.ConvertLeadRequest{Type: "customer", Value: 1200, Reason: "signed"})
	require.NoError(t, err)
	assert.True(t, first.Conversion.Converted)
	assert.Equal(t, domain.StatusWon, first.Status)
	assert.Equal(t, domain.StagePurchase, first.PipelineStage)
	require.NotNil(t, first.Conversion.ConvertedAt)
	convertedAt := *first.Conversion.ConvertedAt

	second, err := svc.Convert(ctx, tenantID, lead.ID, actorID, transport.ConvertLeadRequest{Type: "partner", Value: 5000, Reason: "upsell"})
	require.NoError(t, err)

	assert.Equal(t, len(first.StageHistory), len(second.StageHistory))
	assert.Equal(t, convertedAt, *second.Conversion.ConvertedAt)
	assert.Equal(t, domain.ConversionPartner, second.Conversion.Type)
	assert.Equal(t, 5000.0, second.Conversion.Value)
	assert.Equal(t, []string{"signed", "upsell"}, second.Conversion.Reasons)

	converted := bus.named("leads.lead.converted")
	require.Len(t, converted, 2)
	assert.True(t, converted[0].(events.LeadConverted).FirstConversion)
	assert.False(t, converted[1].(events.LeadConverted).FirstConversion)
}

func TestSoftDelete(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	lead, err := svc.Create(ctx, tenantID, actorID, validCreate())
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, tenantID, lead.ID, actorID))

	got, err := svc.GetByID(ctx, tenantID, lead.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, &actorID, got.DeletedBy)
	assert.Len(t, bus.named("leads.lead.deleted"), 1)

	err = svc.SoftDelete(ctx, tenantID, lead.ID, actorID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	name := "Changed"
	_, err = svc.Update(ctx, tenantID, lead.ID, actorID, transport.UpdateLeadRequest{FirstName: &name})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	exists, err := svc.LeadExists(ctx, tenantID, lead.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTenantIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	lead, err := svc.Create(ctx, uuid.New(), uuid.New(), validCreate())
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, uuid.New(), lead.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestMutateRetriesOnConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	lead, err := svc.Create(ctx, tenantID, uuid.New(), validCreate())
	require.NoError(t, err)

	repo.conflicts = 1
	require.NoError(t, svc.RecordActivity(ctx, tenantID, lead.ID, domain.ActivityTouch{ActivityType: "call"}))

	got, err := svc.GetByID(ctx, tenantID, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalActivities)
	assert.Equal(t, 2, repo.saves)
}

func TestMutateGivesUpAfterMaxAttempts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	lead, err := svc.Create(ctx, tenantID, uuid.New(), validCreate())
	require.NoError(t, err)

	repo.conflicts = maxWriteAttempts
	err = svc.RecordMeetingAttended(ctx, tenantID, lead.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, maxWriteAttempts, repo.saves)
}

func TestEngagementPortsRescore(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	lead, err := svc.Create(ctx, tenantID, uuid.New(), validCreate())
	require.NoError(t, err)
	before := lead.LeadScore

	require.NoError(t, svc.RecordMeetingAttended(ctx, tenantID, lead.ID))
	require.NoError(t, svc.RecordDocumentEngagement(ctx, tenantID, lead.ID, "proposal"))
	got, err := svc.RecordEngagement(ctx, tenantID, lead.ID, transport.RecordEngagementRequest{EmailOpens: 2, LinkClicks: 1})
	require.NoError(t, err)

	// 5 meeting + 3 document + 4 proposal + 2 opens + 2 clicks
	assert.Equal(t, 16, got.Engagement.EngagementScore)
	assert.Equal(t, 1, got.Engagement.ProposalViews)
	assert.Greater(t, got.LeadScore, before)
	require.NotNil(t, got.Engagement.LastEngagedAt)
}

func TestRecordActivityAdvancesFollowUp(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	lead, err := svc.Create(ctx, tenantID, uuid.New(), validCreate())
	require.NoError(t, err)

	due := fixedNow.Add(48 * time.Hour)
	require.NoError(t, svc.RecordActivity(ctx, tenantID, lead.ID, domain.ActivityTouch{ActivityType: "follow-up", DueDate: &due}))

	got, err := svc.GetByID(ctx, tenantID, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextFollowUp)
	assert.Equal(t, due, *got.NextFollowUp)
	assert.Equal(t, fixedNow, *got.LastContactDate)

	followUps, err := svc.ListFollowUp(ctx, tenantID, svc.FollowUpHorizon(2))
	require.NoError(t, err)
	assert.Len(t, followUps, 1)

	followUps, err = svc.ListFollowUp(ctx, tenantID, svc.FollowUpHorizon(0))
	require.NoError(t, err)
	assert.Empty(t, followUps)
}

func TestListHotExcludesClosedAndDeleted(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	open := hotLead(tenantID, "open@example.com", fixedNow)
	won := hotLead(tenantID, "won@example.com", fixedNow)
	won.Status = domain.StatusWon
	deleted := hotLead(tenantID, "deleted@example.com", fixedNow)
	require.NoError(t, deleted.MarkDeleted(uuid.New(), fixedNow))
	cold := hotLead(tenantID, "cold@example.com", fixedNow)
	cold.BANT = domain.BANT{}
	cold.Engagement = domain.Engagement{}
	cold.Rescore()

	for _, l := range []domain.Lead{open, won, deleted, cold} {
		repo.put(l)
	}

	hot, err := svc.ListHot(ctx, tenantID, 0)
	require.NoError(t, err)
	require.Len(t, hot, 1)
	assert.Equal(t, open.ID, hot[0].ID)
}

func TestBulkImport(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	faker := gofakeit.New(42)

	rows := make([]transport.CreateLeadRequest, 0, 6)
	for i := 0; i < 4; i++ {
		rows = append(rows, transport.CreateLeadRequest{
			FirstName: faker.FirstName(),
			LastName:  faker.LastName(),
			Email:     fmt.Sprintf("import%d@example.com", i),
			Phone:     fmt.Sprintf("+3161%07d", 2000000+i),
			Company:   transport.CompanyRequest{Name: faker.Company()},
		})
	}
	invalid := rows[0]
	invalid.Email = "not-an-email"
	duplicate := rows[1]
	rows = append(rows, invalid, duplicate)

	res, err := svc.BulkImport(ctx, tenantID, uuid.New(), transport.BulkImportRequest{Leads: rows})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
	assert.Equal(t, 0, res.Updated)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 4, res.Errors[0].Index)
	assert.Equal(t, 5, res.Errors[1].Index)
	assert.Equal(t, msgDuplicateEmail, res.Errors[1].Message)

	list, err := svc.List(ctx, tenantID, transport.ListLeadsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, list.Total)
	for _, lead := range list.Items {
		assert.Equal(t, domain.SourceImport, lead.Source)
	}

	// Upsert updates the existing row instead of failing.
	duplicate.JobTitle = "CTO"
	res, err = svc.BulkImport(ctx, tenantID, uuid.New(), transport.BulkImportRequest{
		Leads:         []transport.CreateLeadRequest{duplicate},
		UpsertByEmail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.Errors)
}

func TestBulkUpdateAndDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenantID, actorID := uuid.New(), uuid.New()

	_, err := svc.BulkUpdate(ctx, tenantID, actorID, transport.BulkUpdateRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.BulkDelete(ctx, tenantID, actorID, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	a, err := svc.Create(ctx, tenantID, actorID, validCreate())
	require.NoError(t, err)
	req := validCreate()
	req.Email = "second@example.com"
	b, err := svc.Create(ctx, tenantID, actorID, req)
	require.NoError(t, err)
	missing := uuid.New()

	status := "contacted"
	res, err := svc.BulkUpdate(ctx, tenantID, actorID, transport.BulkUpdateRequest{
		IDs:   []uuid.UUID{a.ID, missing, b.ID, a.ID},
		Patch: transport.BulkUpdatePatch{Status: &status, AddTags: []string{"Q2", "q2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Modified)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, missing.String(), res.Errors[0].Identifier)

	got, err := svc.GetByID(ctx, tenantID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusContacted, got.Status)
	assert.Equal(t, []string{"q2"}, got.Tags)

	res, err = svc.BulkDelete(ctx, tenantID, actorID, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Modified)

	list, err := svc.List(ctx, tenantID, transport.ListLeadsRequest{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestGetByIDUsesCacheAndMutationsInvalidate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc.SetCache(cache.NewRedisFromClient(client, "crm:"), time.Minute)

	ctx := context.Background()
	tenantID := uuid.New()
	lead, err := svc.Create(ctx, tenantID, uuid.New(), validCreate())
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, tenantID, lead.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("crm:"+cacheKey(tenantID, lead.ID)))

	// A write behind the service's back is hidden by the cache.
	stale := lead
	stale.FirstName = "Behind"
	repo.put(stale)
	got, err := svc.GetByID(ctx, tenantID, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.FirstName)

	name := "Fresh"
	_, err = svc.Update(ctx, tenantID, lead.ID, uuid.New(), transport.UpdateLeadRequest{FirstName: &name})
	require.NoError(t, err)
	assert.False(t, mr.Exists("crm:"+cacheKey(tenantID, lead.ID)))

	got, err = svc.GetByID(ctx, tenantID, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", got.FirstName)
}
