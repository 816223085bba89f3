// Package inapp keeps the per-user notification inbox.
package inapp

import (
	"context"
	"strings"
	"time"

	"crm_backend/platform/apperr"
	"crm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	CategoryInfo    = "info"
	CategorySuccess = "success"
	CategoryWarning = "warning"

	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{store: store, log: log, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

type SendParams struct {
	TenantID     uuid.UUID
	UserID       uuid.UUID
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType string
	Category     string
}

// Send stores a notification for the recipient.
func (s *Service) Send(ctx context.Context, p SendParams) (Notification, error) {
	if p.TenantID == uuid.Nil || p.UserID == uuid.Nil {
		return Notification{}, apperr.Validation("tenantId and userId are required")
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return Notification{}, apperr.Validation("title is required")
	}
	if p.Category == "" {
		p.Category = CategoryInfo
	}

	n := Notification{
		ID:           uuid.New(),
		TenantID:     p.TenantID,
		UserID:       p.UserID,
		Title:        title,
		Content:      strings.TrimSpace(p.Content),
		ResourceID:   p.ResourceID,
		ResourceType: p.ResourceType,
		Category:     p.Category,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, &n); err != nil {
		s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID)
		return Notification{}, err
	}
	return n, nil
}

// List pages through the inbox, newest first.
func (s *Service) List(ctx context.Context, tenantID, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return s.store.List(ctx, tenantID, userID, pageSize, (page-1)*pageSize)
}

func (s *Service) CountUnread(ctx context.Context, tenantID, userID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, tenantID, userID)
}

func (s *Service) MarkRead(ctx context.Context, tenantID, userID, id uuid.UUID) error {
	return s.store.MarkRead(ctx, tenantID, userID, id, s.now().UTC())
}

func (s *Service) MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) error {
	return s.store.MarkAllRead(ctx, tenantID, userID, s.now().UTC())
}

func (s *Service) Delete(ctx context.Context, tenantID, userID, id uuid.UUID) error {
	return s.store.Delete(ctx, tenantID, userID, id)
}
