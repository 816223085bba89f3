package repository

import (
	"context"
	"time"

	"crm_backend/internal/documents/domain"

	"github.com/google/uuid"
)

type DocumentReader interface {
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (domain.Document, error)
	ListByLead(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID) ([]domain.Document, error)
	ListTrending(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.Document, error)
}

type DocumentWriter interface {
	Create(ctx context.Context, d *domain.Document) error
	Save(ctx context.Context, d *domain.Document) error
}

type ShareLinkStore interface {
	CreateShareLink(ctx context.Context, l *domain.ShareLink) error
	GetShareLink(ctx context.Context, token string) (domain.ShareLink, error)
	ListShareLinks(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID) ([]domain.ShareLink, error)
	ConsumeShareLinkView(ctx context.Context, token string, now time.Time) (domain.ShareLink, bool, error)
	RevokeShareLink(ctx context.Context, documentID uuid.UUID, tenantID uuid.UUID, token string) error
}

var (
	_ DocumentReader = (*Repository)(nil)
	_ DocumentWriter = (*Repository)(nil)
	_ ShareLinkStore = (*Repository)(nil)
)
