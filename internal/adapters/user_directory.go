package adapters

import (
	"context"

	activitysvc "crm_backend/internal/activities/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDirectory checks assignees against the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) UserExists(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND tenant_id = $2 AND is_active)
	`, userID, tenantID).Scan(&exists)
	return exists, err
}

var _ activitysvc.UserDirectory = (*UserDirectory)(nil)
