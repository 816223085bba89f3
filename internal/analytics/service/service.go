// Package service builds the sales dashboard from lead, activity and sale
// aggregates.
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"crm_backend/internal/analytics/repository"
	"crm_backend/internal/analytics/transport"
	"crm_backend/platform/cache"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardTTL = 60 * time.Second

	outcomeSuccessful     = "successful"
	outcomeDealClosed     = "deal-closed"
	outcomeDocumentViewed = "document-viewed"
)

// Reader is the read model the dashboard aggregates.
type Reader interface {
	LeadTotals(ctx context.Context, tenantID uuid.UUID, f repository.Filter) (repository.LeadTotals, error)
	StageHistories(ctx context.Context, tenantID uuid.UUID, f repository.Filter) ([][]repository.StageEntry, error)
	ActivityOutcomes(ctx context.Context, tenantID uuid.UUID, f repository.Filter) (repository.OutcomeCounts, error)
}

// RevenueSource sums expected revenue over sales, optionally only those whose
// lead came from leadSource.
type RevenueSource interface {
	SumExpectedRevenue(ctx context.Context, tenantID uuid.UUID, since *time.Time, owner *uuid.UUID, leadSource string) (float64, error)
}

// Filters narrow the dashboard beyond its period.
type Filters struct {
	AssignedTo *uuid.UUID
	Source     string
}

type Service struct {
	reader  Reader
	revenue RevenueSource
	cache   cache.Cache
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(reader Reader, revenue RevenueSource, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		reader:  reader,
		revenue: revenue,
		cache:   cache.Noop{},
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) SetCache(c cache.Cache) {
	s.cache = c
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetDashboard computes the dashboard for the period. Results are cached
// per tenant and filter set for a minute.
func (s *Service) GetDashboard(ctx context.Context, tenantID uuid.UUID, period string, filters Filters) (transport.Dashboard, error) {
	now := s.now()
	window := WindowFor(period, now)
	key := dashboardKey(tenantID, window.Period, filters)

	var cached transport.Dashboard
	hit, err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err != nil {
		s.log.Warn("dashboard cache read failed", "key", key, "error", err)
	}
	if hit {
		s.metrics.CacheHit("dashboard")
		return cached, nil
	}
	s.metrics.CacheMiss("dashboard")

	f := repository.Filter{Since: window.Since, AssignedTo: filters.AssignedTo, Source: filters.Source}
	var (
		totals    repository.LeadTotals
		histories [][]repository.StageEntry
		outcomes  repository.OutcomeCounts
		revenue   float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.reader.LeadTotals(gctx, tenantID, f)
		return err
	})
	g.Go(func() error {
		var err error
		histories, err = s.reader.StageHistories(gctx, tenantID, f)
		return err
	})
	g.Go(func() error {
		var err error
		outcomes, err = s.reader.ActivityOutcomes(gctx, tenantID, f)
		return err
	})
	g.Go(func() error {
		var err error
		revenue, err = s.revenue.SumExpectedRevenue(gctx, tenantID, window.Since, filters.AssignedTo, filters.Source)
		return err
	})
	if err := g.Wait(); err != nil {
		return transport.Dashboard{}, fmt.Errorf("build dashboard: %w", err)
	}

	d := buildDashboard(window, now, totals, histories, outcomes, revenue)
	if err := cache.SetJSON(ctx, s.cache, key, d, dashboardTTL); err != nil {
		s.log.Warn("dashboard cache write failed", "key", key, "error", err)
	}
	return d, nil
}

func buildDashboard(w Window, now time.Time, totals repository.LeadTotals, histories [][]repository.StageEntry, outcomes repository.OutcomeCounts, revenue float64) transport.Dashboard {
	byOutcome := outcomes.ByOutcome
	if byOutcome == nil {
		byOutcome = map[string]int{}
	}
	successful := byOutcome[outcomeSuccessful] + byOutcome[outcomeDealClosed]
	docViews := byOutcome[outcomeDocumentViewed]

	return transport.Dashboard{
		Period:      w.Period,
		Since:       w.Since,
		GeneratedAt: now,
		Leads: transport.LeadSummary{
			Total:          totals.Total,
			Converted:      totals.Converted,
			ConversionRate: percent(totals.Converted, totals.Total),
		},
		StageDurations: averageStageDurations(histories),
		Activities: transport.ActivitySummary{
			Total:         outcomes.Total,
			Successful:    successful,
			Effectiveness: percent(successful, outcomes.Total),
			ByOutcome:     byOutcome,
		},
		Revenue: transport.RevenueForecast{Expected: revenue},
		DocumentEngagement: transport.DocumentEngagement{
			Views: docViews,
			Rate:  percent(docViews, outcomes.Total),
		},
	}
}

// averageStageDurations measures how long leads stayed in each stage they
// have already left. Consecutive entries for the same stage (status changes)
// extend one stay.
func averageStageDurations(histories [][]repository.StageEntry) []transport.StageDuration {
	type acc struct {
		total   time.Duration
		samples int
	}
	sums := make(map[string]*acc)

	for _, h := range histories {
		entries := append([]repository.StageEntry(nil), h...)
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].ChangedAt.Before(entries[j].ChangedAt) })

		start := 0
		for i := 1; i < len(entries); i++ {
			if entries[i].Stage == entries[start].Stage {
				continue
			}
			a := sums[entries[start].Stage]
			if a == nil {
				a = &acc{}
				sums[entries[start].Stage] = a
			}
			a.total += entries[i].ChangedAt.Sub(entries[start].ChangedAt)
			a.samples++
			start = i
		}
	}

	out := make([]transport.StageDuration, 0, len(sums))
	for stage, a := range sums {
		out = append(out, transport.StageDuration{
			Stage:    stage,
			AvgHours: round2(a.total.Hours() / float64(a.samples)),
			Samples:  a.samples,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// percent returns part/total*100, or 0 when total is 0.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func dashboardKey(tenantID uuid.UUID, period string, f Filters) string {
	assigned := "-"
	if f.AssignedTo != nil {
		assigned = f.AssignedTo.String()
	}
	return fmt.Sprintf("analytics:dashboard:%s:%s:%s:%s", tenantID, period, assigned, f.Source)
}
