// Package repository runs the read-only aggregate queries behind the
// analytics dashboard.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filter narrows every dashboard query. Zero values match everything.
type Filter struct {
	Since      *time.Time
	AssignedTo *uuid.UUID
	Source     string
}

type LeadTotals struct {
	Total     int
	Converted int
}

// StageEntry is the part of a lead's stage history the dashboard needs.
type StageEntry struct {
	Stage     string    `json:"stage"`
	ChangedAt time.Time `json:"changedAt"`
}

type OutcomeCounts struct {
	Total     int
	ByOutcome map[string]int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadFilter = `tenant_id = $1 AND NOT is_deleted
	AND ($2::timestamptz IS NULL OR created_at >= $2)
	AND ($3::uuid IS NULL OR assigned_to = $3)
	AND ($4 = '' OR source = $4)`

func (r *Repository) LeadTotals(ctx context.Context, tenantID uuid.UUID, f Filter) (LeadTotals, error) {
	var t LeadTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE COALESCE((conversion->>'converted')::boolean, false))
		FROM leads WHERE `+leadFilter,
		tenantID, f.Since, f.AssignedTo, f.Source,
	).Scan(&t.Total, &t.Converted)
	if err != nil {
		return LeadTotals{}, fmt.Errorf("lead totals: %w", err)
	}
	return t, nil
}

// StageHistories returns one stage history per matching lead.
func (r *Repository) StageHistories(ctx context.Context, tenantID uuid.UUID, f Filter) ([][]StageEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT stage_history FROM leads WHERE `+leadFilter,
		tenantID, f.Since, f.AssignedTo, f.Source)
	if err != nil {
		return nil, fmt.Errorf("stage histories: %w", err)
	}
	defer rows.Close()

	var out [][]StageEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var entries []StageEntry
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, fmt.Errorf("decode stage history: %w", err)
			}
		}
		out = append(out, entries)
	}
	return out, rows.Err()
}

// ActivityOutcomes counts live activities in the window by outcome result.
// Activities without an outcome only add to Total.
func (r *Repository) ActivityOutcomes(ctx context.Context, tenantID uuid.UUID, f Filter) (OutcomeCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(outcome_result, ''), COUNT(*) FROM activities
		WHERE tenant_id = $1 AND deleted_at IS NULL
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::uuid IS NULL OR assigned_to = $3)
			AND ($4 = '' OR EXISTS (
				SELECT 1 FROM leads l WHERE l.id = activities.lead_id AND l.source = $4
			))
		GROUP BY 1
	`, tenantID, f.Since, f.AssignedTo, f.Source)
	if err != nil {
		return OutcomeCounts{}, fmt.Errorf("activity outcomes: %w", err)
	}
	defer rows.Close()

	counts := OutcomeCounts{ByOutcome: make(map[string]int)}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return OutcomeCounts{}, err
		}
		counts.Total += n
		if outcome != "" {
			counts.ByOutcome[outcome] = n
		}
	}
	return counts, rows.Err()
}
