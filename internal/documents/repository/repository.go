package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/documents/domain"
	"crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrConflict          = errors.New("document was modified concurrently")
	ErrShareLinkNotFound = errors.New("share link not found")
	ErrDuplicateToken    = errors.New("share link token already exists")
)

const shareTokenConstraint = "document_share_links_pkey"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const documentColumns = `id, tenant_id, lead_id, project_id, title, description, category, status,
	file_name, file_path, file_size, mime_type, checksum, current_version, versions,
	views, view_count, unique_viewers, total_view_time, avg_view_time, download_count,
	last_viewed_at, last_downloaded_at, total_pages, engagement, signatures,
	created_by, created_at, updated_at, version`

type documentJSON struct {
	versions, views, engagement, signatures []byte
}

func encodeDocument(d *domain.Document) (documentJSON, error) {
	var (
		out documentJSON
		err error
	)
	if out.versions, err = json.Marshal(nonNil(d.Versions)); err != nil {
		return out, err
	}
	if out.views, err = json.Marshal(nonNil(d.Views)); err != nil {
		return out, err
	}
	engagement := d.Engagement
	engagement.HotSpots = nonNil(engagement.HotSpots)
	if out.engagement, err = json.Marshal(engagement); err != nil {
		return out, err
	}
	if out.signatures, err = json.Marshal(nonNil(d.Signatures)); err != nil {
		return out, err
	}
	return out, nil
}

func scanDocument(row pgx.Row) (domain.Document, error) {
	var (
		d   domain.Document
		raw documentJSON
	)
	err := row.Scan(
		&d.ID, &d.TenantID, &d.LeadID, &d.ProjectID, &d.Title, &d.Description, &d.Category, &d.Status,
		&d.FileName, &d.FilePath, &d.FileSize, &d.MimeType, &d.Checksum, &d.CurrentVersion, &raw.versions,
		&raw.views, &d.ViewCount, &d.UniqueViewers, &d.TotalViewTime, &d.AvgViewTime, &d.DownloadCount,
		&d.LastViewedAt, &d.LastDownloadedAt, &d.TotalPages, &raw.engagement, &raw.signatures,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.Version,
	)
	if err != nil {
		return domain.Document{}, err
	}

	for _, part := range []struct {
		raw  []byte
		dest any
	}{
		{raw.versions, &d.Versions},
		{raw.views, &d.Views},
		{raw.engagement, &d.Engagement},
		{raw.signatures, &d.Signatures},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dest); err != nil {
			return domain.Document{}, fmt.Errorf("decode document %s: %w", d.ID, err)
		}
	}
	d.Versions = nonNil(d.Versions)
	d.Views = nonNil(d.Views)
	d.Signatures = nonNil(d.Signatures)
	d.Engagement.HotSpots = nonNil(d.Engagement.HotSpots)
	return d, nil
}

func (r *Repository) Create(ctx context.Context, d *domain.Document) error {
	raw, err := encodeDocument(d)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
	`,
		d.ID, d.TenantID, d.LeadID, d.ProjectID, d.Title, d.Description, d.Category, d.Status,
		d.FileName, d.FilePath, d.FileSize, d.MimeType, d.Checksum, d.CurrentVersion, raw.versions,
		raw.views, d.ViewCount, d.UniqueViewers, d.TotalViewTime, d.AvgViewTime, d.DownloadCount,
		d.LastViewedAt, d.LastDownloadedAt, d.TotalPages, raw.engagement, raw.signatures,
		d.CreatedBy, d.CreatedAt, d.UpdatedAt, d.Version,
	)
	return err
}

// Save writes the whole aggregate in one statement guarded by version.
func (r *Repository) Save(ctx context.Context, d *domain.Document) error {
	raw, err := encodeDocument(d)
	if err != nil {
		return err
	}

	var (
		version   int
		updatedAt time.Time
	)
	err = r.pool.QueryRow(ctx, `
		UPDATE documents SET
			lead_id = $3, project_id = $4, title = $5, description = $6, category = $7, status = $8,
			file_name = $9, file_path = $10, file_size = $11, mime_type = $12, checksum = $13,
			current_version = $14, versions = $15, views = $16, view_count = $17, unique_viewers = $18,
			total_view_time = $19, avg_view_time = $20, download_count = $21, last_viewed_at = $22,
			last_downloaded_at = $23, total_pages = $24, engagement = $25, signatures = $26,
			updated_at = now(), version = version + 1
		WHERE id = $1 AND tenant_id = $2 AND version = $27
		RETURNING version, updated_at
	`,
		d.ID, d.TenantID, d.LeadID, d.ProjectID, d.Title, d.Description, d.Category, d.Status,
		d.FileName, d.FilePath, d.FileSize, d.MimeType, d.Checksum,
		d.CurrentVersion, raw.versions, raw.views, d.ViewCount, d.UniqueViewers,
		d.TotalViewTime, d.AvgViewTime, d.DownloadCount, d.LastViewedAt,
		d.LastDownloadedAt, d.TotalPages, raw.engagement, raw.signatures,
		d.Version,
	).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, d.ID, d.TenantID)
		}
		return err
	}

	d.Version = version
	d.UpdatedAt = updatedAt
	return nil
}

func (r *Repository) missOrConflict(ctx context.Context, id, tenantID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1 AND tenant_id = $2)`, id, tenantID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, ErrNotFound
	}
	return d, err
}

func (r *Repository) ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Document, error) {
	return r.query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE tenant_id = $1 AND lead_id = $2
		ORDER BY created_at DESC
	`, tenantID, leadID)
}

// ListTrending returns documents viewed since the cutoff, most viewed first.
func (r *Repository) ListTrending(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.Document, error) {
	return r.query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE tenant_id = $1 AND last_viewed_at >= $2 AND status <> 'archived'
		ORDER BY view_count DESC, last_viewed_at DESC
		LIMIT $3
	`, tenantID, since, limit)
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Document, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return docs, nil
}

const shareLinkColumns = `token, document_id, tenant_id, password_hash, expires_at, max_views,
	current_views, allow_download, is_active, created_by, created_at`

func scanShareLink(row pgx.Row) (domain.ShareLink, error) {
	var l domain.ShareLink
	err := row.Scan(
		&l.Token, &l.DocumentID, &l.TenantID, &l.PasswordHash, &l.ExpiresAt, &l.MaxViews,
		&l.CurrentViews, &l.AllowDownload, &l.IsActive, &l.CreatedBy, &l.CreatedAt,
	)
	return l, err
}

// CreateShareLink stores a link. Tokens are the primary key so they are
// unique across every document and tenant.
func (r *Repository) CreateShareLink(ctx context.Context, l *domain.ShareLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO document_share_links (`+shareLinkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		l.Token, l.DocumentID, l.TenantID, l.PasswordHash, l.ExpiresAt, l.MaxViews,
		l.CurrentViews, l.AllowDownload, l.IsActive, l.CreatedBy, l.CreatedAt,
	)
	if db.IsUniqueViolation(err, shareTokenConstraint) {
		return ErrDuplicateToken
	}
	return err
}

// GetShareLink looks a link up by token alone; tokens are the credential.
func (r *Repository) GetShareLink(ctx context.Context, token string) (domain.ShareLink, error) {
	l, err := scanShareLink(r.pool.QueryRow(ctx,
		`SELECT `+shareLinkColumns+` FROM document_share_links WHERE token = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ShareLink{}, ErrShareLinkNotFound
	}
	return l, err
}

func (r *Repository) ListShareLinks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID) ([]domain.ShareLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+shareLinkColumns+` FROM document_share_links
		WHERE document_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
	`, documentID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]domain.ShareLink, 0)
	for rows.Next() {
		l, err := scanShareLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// ConsumeShareLinkView counts one view if the link is still usable. It
// returns false, with no error, when the policy refused the view.
func (r *Repository) ConsumeShareLinkView(ctx context.Context, token string, now time.Time) (domain.ShareLink, bool, error) {
	l, err := scanShareLink(r.pool.QueryRow(ctx, `
		UPDATE document_share_links SET current_views = current_views + 1
		WHERE token = $1 AND is_active
			AND (expires_at IS NULL OR expires_at > $2)
			AND (max_views IS NULL OR current_views < max_views)
		RETURNING `+shareLinkColumns, token, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ShareLink{}, false, nil
	}
	if err != nil {
		return domain.ShareLink{}, false, err
	}
	return l, true, nil
}

func (r *Repository) RevokeShareLink(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID, token string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE document_share_links SET is_active = false
		WHERE token = $1 AND document_id = $2 AND tenant_id = $3
	`, token, documentID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShareLinkNotFound
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
