package repository

import (
	"context"
	"errors"
	"time"

	"crm_backend/internal/sales/domain"
	"crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateConversion means the lead already has its conversion sale.
var ErrDuplicateConversion = errors.New("conversion sale already recorded")

const conversionConstraint = "sales_conversion_lead_key"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const saleColumns = `id, tenant_id, lead_id, title, stage, value, probability, expected_revenue,
	expected_close_date, closed_at, owner, source, created_by, created_at, updated_at`

func scanSale(row pgx.Row) (domain.Sale, error) {
	var s domain.Sale
	err := row.Scan(
		&s.ID, &s.TenantID, &s.LeadID, &s.Title, &s.Stage, &s.Value, &s.Probability, &s.ExpectedRevenue,
		&s.ExpectedCloseDate, &s.ClosedAt, &s.Owner, &s.Source, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func (r *Repository) Create(ctx context.Context, s *domain.Sale) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		s.ID, s.TenantID, s.LeadID, s.Title, s.Stage, s.Value, s.Probability, s.ExpectedRevenue,
		s.ExpectedCloseDate, s.ClosedAt, s.Owner, s.Source, s.CreatedBy, s.CreatedAt, s.UpdatedAt,
	)
	if db.IsUniqueViolation(err, conversionConstraint) {
		return ErrDuplicateConversion
	}
	return err
}

func (r *Repository) ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Sale, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE tenant_id = $1 AND lead_id = $2
		ORDER BY created_at DESC
	`, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// RevenueFilter narrows SumExpectedRevenue. Zero values match everything.
type RevenueFilter struct {
	Since      *time.Time
	Owner      *uuid.UUID
	// LeadSource matches the source of the lead the sale belongs to.
	LeadSource string
}

// SumExpectedRevenue adds up expected revenue over sales that are not lost.
func (r *Repository) SumExpectedRevenue(ctx context.Context, tenantID uuid.UUID, f RevenueFilter) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(expected_revenue), 0)::float8 FROM sales
		WHERE tenant_id = $1
			AND stage <> 'closed-lost'
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::uuid IS NULL OR owner = $3)
			AND ($4 = '' OR EXISTS (
				SELECT 1 FROM leads l WHERE l.id = sales.lead_id AND l.source = $4
			))
	`, tenantID, f.Since, f.Owner, f.LeadSource).Scan(&total)
	return total, err
}
