package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/activities/domain"
	"crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("activity not found")
	ErrConflict = errors.New("activity was modified concurrently")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `id, tenant_id, lead_id, type, subject, description, priority, status,
	is_completed, completed_date, completed_by, completion_notes,
	due_date, scheduled_date, start_time, end_time, duration_minutes,
	outcome_result, outcome_notes, outcome_sentiment, outcome_recorded_at, outcome_recorded_by,
	reminder_enabled, remind_at, reminder_sent, reminder_sent_at,
	requires_follow_up, follow_up_date, follow_up_created, follow_up_from,
	assigned_to, created_by, created_at, updated_at, deleted_at, version`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(
		&a.ID, &a.TenantID, &a.LeadID, &a.Type, &a.Subject, &a.Description, &a.Priority, &a.Status,
		&a.IsCompleted, &a.CompletedDate, &a.CompletedBy, &a.CompletionNotes,
		&a.DueDate, &a.ScheduledDate, &a.StartTime, &a.EndTime, &a.DurationMinutes,
		&a.Outcome.Result, &a.Outcome.Notes, &a.Outcome.Sentiment, &a.Outcome.RecordedAt, &a.Outcome.RecordedBy,
		&a.Reminder.Enabled, &a.Reminder.RemindAt, &a.Reminder.Sent, &a.Reminder.SentAt,
		&a.RequiresFollowUp, &a.FollowUpDate, &a.FollowUpCreated, &a.FollowUpFrom,
		&a.AssignedTo, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt, &a.Version,
	)
	return a, err
}

func insert(ctx context.Context, q db.Querier, a *domain.Activity) error {
	_, err := q.Exec(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36)
	`,
		a.ID, a.TenantID, a.LeadID, a.Type, a.Subject, a.Description, a.Priority, a.Status,
		a.IsCompleted, a.CompletedDate, a.CompletedBy, a.CompletionNotes,
		a.DueDate, a.ScheduledDate, a.StartTime, a.EndTime, a.DurationMinutes,
		a.Outcome.Result, a.Outcome.Notes, a.Outcome.Sentiment, a.Outcome.RecordedAt, a.Outcome.RecordedBy,
		a.Reminder.Enabled, a.Reminder.RemindAt, a.Reminder.Sent, a.Reminder.SentAt,
		a.RequiresFollowUp, a.FollowUpDate, a.FollowUpCreated, a.FollowUpFrom,
		a.AssignedTo, a.CreatedBy, a.CreatedAt, a.UpdatedAt, a.DeletedAt, a.Version,
	)
	return err
}

func (r *Repository) Create(ctx context.Context, a *domain.Activity) error {
	return insert(ctx, r.pool, a)
}

// Save writes the mutable columns if the stored version still matches.
func (r *Repository) Save(ctx context.Context, a *domain.Activity) error {
	var (
		version   int
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		UPDATE activities SET
			type = $3, subject = $4, description = $5, priority = $6, status = $7,
			is_completed = $8, completed_date = $9, completed_by = $10, completion_notes = $11,
			due_date = $12, scheduled_date = $13, start_time = $14, end_time = $15, duration_minutes = $16,
			outcome_result = $17, outcome_notes = $18, outcome_sentiment = $19, outcome_recorded_at = $20,
			outcome_recorded_by = $21, reminder_enabled = $22, remind_at = $23, reminder_sent = $24,
			reminder_sent_at = $25, requires_follow_up = $26, follow_up_date = $27, assigned_to = $28,
			deleted_at = $29, updated_at = now(), version = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $30
		RETURNING version, updated_at
	`,
		a.ID, a.TenantID, a.Type, a.Subject, a.Description, a.Priority, a.Status,
		a.IsCompleted, a.CompletedDate, a.CompletedBy, a.CompletionNotes,
		a.DueDate, a.ScheduledDate, a.StartTime, a.EndTime, a.DurationMinutes,
		a.Outcome.Result, a.Outcome.Notes, a.Outcome.Sentiment, a.Outcome.RecordedAt,
		a.Outcome.RecordedBy, a.Reminder.Enabled, a.Reminder.RemindAt, a.Reminder.Sent,
		a.Reminder.SentAt, a.RequiresFollowUp, a.FollowUpDate, a.AssignedTo,
		a.DeletedAt, a.Version,
	).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, a.ID, a.TenantID)
		}
		return err
	}

	a.Version = version
	a.UpdatedAt = updatedAt
	return nil
}

func (r *Repository) missOrConflict(ctx context.Context, id, tenantID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM activities WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL)`, id, tenantID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// SpawnFollowUp flips follow_up_created on the parent and inserts the child
// in one transaction. It returns false when another writer already spawned
// the follow-up.
func (r *Repository) SpawnFollowUp(ctx context.Context, parent *domain.Activity, child *domain.Activity) (bool, error) {
	spawned := false
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var version int
		err := tx.QueryRow(ctx, `
			UPDATE activities SET follow_up_created = true, updated_at = now(), version = version + 1
			WHERE id = $1 AND tenant_id = $2 AND NOT follow_up_created AND deleted_at IS NULL
			RETURNING version
		`, parent.ID, parent.TenantID).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := insert(ctx, tx, child); err != nil {
			return fmt.Errorf("insert follow-up: %w", err)
		}
		parent.FollowUpCreated = true
		parent.Version = version
		spawned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return spawned, nil
}

// GetByID returns a live activity.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Activity, error) {
	a, err := scanActivity(r.pool.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Activity{}, ErrNotFound
	}
	return a, err
}

// ListByLead returns the lead's timeline, newest first.
func (r *Repository) ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Activity, error) {
	return r.query(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE tenant_id = $1 AND lead_id = $2 AND deleted_at IS NULL
		ORDER BY COALESCE(due_date, created_at) DESC, id
	`, tenantID, leadID)
}

func (r *Repository) ListOverdue(ctx context.Context, params ScheduleParams) ([]domain.Activity, error) {
	where, args := buildScheduleWhere(params)
	where = append(where, fmt.Sprintf("due_date < $%d", len(args)+1))
	args = append(args, params.Now)

	return r.query(ctx, fmt.Sprintf(`
		SELECT %s FROM activities WHERE %s ORDER BY due_date ASC, id
	`, activityColumns, strings.Join(where, " AND ")), args...)
}

func (r *Repository) ListUpcoming(ctx context.Context, params ScheduleParams) ([]domain.Activity, error) {
	where, args := buildScheduleWhere(params)
	where = append(where, fmt.Sprintf("due_date >= $%d AND due_date <= $%d", len(args)+1, len(args)+2))
	args = append(args, params.Now, params.Until)

	return r.query(ctx, fmt.Sprintf(`
		SELECT %s FROM activities WHERE %s ORDER BY due_date ASC, id
	`, activityColumns, strings.Join(where, " AND ")), args...)
}

func buildScheduleWhere(params ScheduleParams) ([]string, []interface{}) {
	// Tenant is always $1.
	where := []string{
		"tenant_id = $1",
		"deleted_at IS NULL",
		"NOT is_completed",
		"status <> 'cancelled'",
	}
	args := []interface{}{params.TenantID}
	if params.AssignedTo != nil {
		args = append(args, *params.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	return where, args
}

// ListNeedingReminders returns the tenant's open activities with an unsent
// reminder due at or before until.
func (r *Repository) ListNeedingReminders(ctx context.Context, tenantID uuid.UUID, until time.Time) ([]domain.Activity, error) {
	return r.query(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE tenant_id = $1 AND deleted_at IS NULL
			AND reminder_enabled AND NOT reminder_sent AND remind_at <= $2
			AND NOT is_completed AND status <> 'cancelled'
		ORDER BY remind_at ASC
	`, tenantID, until)
}

// ListDueReminders is the cross-tenant variant used by the reminder sweep.
func (r *Repository) ListDueReminders(ctx context.Context, until time.Time, limit int) ([]domain.Activity, error) {
	return r.query(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE deleted_at IS NULL
			AND reminder_enabled AND NOT reminder_sent AND remind_at <= $1
			AND NOT is_completed AND status <> 'cancelled'
		ORDER BY remind_at ASC
		LIMIT $2
	`, until, limit)
}

// MarkReminderSent flags the reminder in one conditional update. It returns
// false when the reminder was already sent or the activity is gone.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, sentAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE activities SET reminder_sent = true, reminder_sent_at = $3, updated_at = now(), version = version + 1
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL AND NOT reminder_sent
	`, id, tenantID, sentAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return activities, nil
}
