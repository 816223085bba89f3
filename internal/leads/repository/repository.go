package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/scoring"
	"crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("lead not found")
	ErrDuplicateEmail = errors.New("lead email already exists")
	// ErrConflict means the row changed since it was loaded.
	ErrConflict = errors.New("lead was modified concurrently")
)

const emailUniqueConstraint = "leads_tenant_email_key"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, tenant_id, first_name, last_name, email, phone, job_title, company,
	source, campaign, medium, status, pipeline_stage, priority, bant, engagement, lead_score,
	total_activities, last_contact_date, next_follow_up, assigned_to, estimated_value, tags, notes,
	conversion, stage_history, is_deleted, deleted_at, deleted_by, created_by, created_at, updated_at, version`

// documents holds the JSONB encoded parts of a lead.
type documents struct {
	company, bant, engagement, conversion, history []byte
}

func encodeDocuments(lead *domain.Lead) (documents, error) {
	var (
		d   documents
		err error
	)
	if d.company, err = json.Marshal(lead.Company); err != nil {
		return d, err
	}
	if d.bant, err = json.Marshal(lead.BANT); err != nil {
		return d, err
	}
	if d.engagement, err = json.Marshal(lead.Engagement); err != nil {
		return d, err
	}
	if d.conversion, err = json.Marshal(lead.Conversion); err != nil {
		return d, err
	}
	history := lead.StageHistory
	if history == nil {
		history = []domain.StageChange{}
	}
	if d.history, err = json.Marshal(history); err != nil {
		return d, err
	}
	return d, nil
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		lead     domain.Lead
		docs     documents
		priority string
	)
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.JobTitle, &docs.company,
		&lead.Source, &lead.Campaign, &lead.Medium, &lead.Status, &lead.PipelineStage, &priority, &docs.bant, &docs.engagement, &lead.LeadScore,
		&lead.TotalActivities, &lead.LastContactDate, &lead.NextFollowUp, &lead.AssignedTo, &lead.EstimatedValue, &lead.Tags, &lead.Notes,
		&docs.conversion, &docs.history, &lead.IsDeleted, &lead.DeletedAt, &lead.DeletedBy, &lead.CreatedBy, &lead.CreatedAt, &lead.UpdatedAt, &lead.Version,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Priority = scoring.Priority(priority)

	for _, part := range []struct {
		raw  []byte
		dest any
	}{
		{docs.company, &lead.Company},
		{docs.bant, &lead.BANT},
		{docs.engagement, &lead.Engagement},
		{docs.conversion, &lead.Conversion},
		{docs.history, &lead.StageHistory},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dest); err != nil {
			return domain.Lead{}, fmt.Errorf("decode lead %s: %w", lead.ID, err)
		}
	}
	if lead.Tags == nil {
		lead.Tags = []string{}
	}
	return lead, nil
}

// Create inserts a lead built by domain.Lead.Initialize.
func (r *Repository) Create(ctx context.Context, lead *domain.Lead) error {
	docs, err := encodeDocuments(lead)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)
	`,
		lead.ID, lead.TenantID, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.JobTitle, docs.company,
		lead.Source, lead.Campaign, lead.Medium, lead.Status, lead.PipelineStage, lead.Priority, docs.bant, docs.engagement, lead.LeadScore,
		lead.TotalActivities, lead.LastContactDate, lead.NextFollowUp, lead.AssignedTo, lead.EstimatedValue, nonNilTags(lead.Tags), lead.Notes,
		docs.conversion, docs.history, lead.IsDeleted, lead.DeletedAt, lead.DeletedBy, lead.CreatedBy, lead.CreatedAt, lead.UpdatedAt, lead.Version,
	)
	if db.IsUniqueViolation(err, emailUniqueConstraint) {
		return ErrDuplicateEmail
	}
	return err
}

// Save writes every mutable column if the stored version still matches
// lead.Version. On success the lead carries the new version.
func (r *Repository) Save(ctx context.Context, lead *domain.Lead) error {
	docs, err := encodeDocuments(lead)
	if err != nil {
		return err
	}

	var (
		version   int
		updatedAt time.Time
	)
	err = r.pool.QueryRow(ctx, `
		UPDATE leads SET
			first_name = $3, last_name = $4, email = $5, phone = $6, job_title = $7, company = $8,
			source = $9, campaign = $10, medium = $11, status = $12, pipeline_stage = $13, priority = $14,
			bant = $15, engagement = $16, lead_score = $17, total_activities = $18, last_contact_date = $19,
			next_follow_up = $20, assigned_to = $21, estimated_value = $22, tags = $23, notes = $24,
			conversion = $25, stage_history = $26, is_deleted = $27, deleted_at = $28, deleted_by = $29,
			updated_at = now(), version = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $30
		RETURNING version, updated_at
	`,
		lead.ID, lead.TenantID, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.JobTitle, docs.company,
		lead.Source, lead.Campaign, lead.Medium, lead.Status, lead.PipelineStage, lead.Priority,
		docs.bant, docs.engagement, lead.LeadScore, lead.TotalActivities, lead.LastContactDate,
		lead.NextFollowUp, lead.AssignedTo, lead.EstimatedValue, nonNilTags(lead.Tags), lead.Notes,
		docs.conversion, docs.history, lead.IsDeleted, lead.DeletedAt, lead.DeletedBy,
		lead.Version,
	).Scan(&version, &updatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, emailUniqueConstraint) {
			return ErrDuplicateEmail
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, lead.ID, lead.TenantID)
		}
		return err
	}

	lead.Version = version
	lead.UpdatedAt = updatedAt
	return nil
}

func (r *Repository) missOrConflict(ctx context.Context, id, tenantID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1 AND tenant_id = $2)`, id, tenantID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// GetByID returns the lead including soft-deleted ones.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// GetByEmail looks a lead up by its normalized email, deleted or not.
func (r *Repository) GetByEmail(ctx context.Context, email string, tenantID uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE lower(email) = $1 AND tenant_id = $2
	`, domain.NormalizeEmail(email), tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// Exists reports whether a live (not deleted) lead exists.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1 AND tenant_id = $2 AND NOT is_deleted)`, id, tenantID,
	).Scan(&exists)
	return exists, err
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	whereClause, args, argIdx := buildLeadListWhere(params)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM leads l WHERE %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortColumn := mapLeadSortColumn(params.SortBy)
	sortOrder := "DESC"
	if params.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM leads l
		WHERE %s
		ORDER BY %s %s, l.id
		LIMIT $%d OFFSET $%d
	`, leadColumns, whereClause, sortColumn, sortOrder, argIdx, argIdx+1)

	leads, err := r.queryLeads(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func buildLeadListWhere(params ListParams) (string, []interface{}, int) {
	// Tenant is always $1.
	whereClauses := []string{"l.tenant_id = $1", "NOT l.is_deleted"}
	args := []interface{}{params.TenantID}
	argIdx := 2

	addEquals := func(column string, value interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.Status != nil {
		addEquals("l.status", *params.Status)
	}
	if params.PipelineStage != nil {
		addEquals("l.pipeline_stage", *params.PipelineStage)
	}
	if params.Priority != nil {
		addEquals("l.priority", *params.Priority)
	}
	if params.Source != nil {
		addEquals("l.source", *params.Source)
	}
	if params.AssignedTo != nil {
		addEquals("l.assigned_to", *params.AssignedTo)
	}
	if params.Tag != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("$%d = ANY(l.tags)", argIdx))
		args = append(args, *params.Tag)
		argIdx++
	}
	if params.MinScore != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("l.lead_score >= $%d", argIdx))
		args = append(args, *params.MinScore)
		argIdx++
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(l.first_name ILIKE $%d OR l.last_name ILIKE $%d OR l.email ILIKE $%d OR l.company->>'name' ILIKE $%d)",
			argIdx, argIdx, argIdx, argIdx,
		))
		args = append(args, "%"+search+"%")
		argIdx++
	}

	return strings.Join(whereClauses, " AND "), args, argIdx
}

func mapLeadSortColumn(sortBy string) string {
	switch sortBy {
	case "leadScore":
		return "l.lead_score"
	case "lastName":
		return "l.last_name"
	case "nextFollowUp":
		return "l.next_follow_up"
	case "estimatedValue":
		return "l.estimated_value"
	case "updatedAt":
		return "l.updated_at"
	default:
		return "l.created_at"
	}
}

// ListHot returns open leads at or above the hot threshold, best first.
func (r *Repository) ListHot(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Lead, error) {
	return r.queryLeads(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE tenant_id = $1 AND NOT is_deleted
			AND lead_score >= $2
			AND status NOT IN ('won', 'lost')
		ORDER BY lead_score DESC, updated_at DESC
		LIMIT $3
	`, tenantID, scoring.HotThreshold, limit)
}

// ListFollowUp returns open leads whose next follow-up is due by horizon.
func (r *Repository) ListFollowUp(ctx context.Context, tenantID uuid.UUID, horizon time.Time) ([]domain.Lead, error) {
	return r.queryLeads(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE tenant_id = $1 AND NOT is_deleted
			AND next_follow_up IS NOT NULL AND next_follow_up <= $2
			AND status NOT IN ('won', 'lost')
		ORDER BY next_follow_up ASC
	`, tenantID, horizon)
}

func (r *Repository) queryLeads(ctx context.Context, query string, args ...interface{}) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return leads, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
