package management

import (
	"context"
	"errors"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/transport"
	"crm_backend/platform/apperr"

	"github.com/google/uuid"
)

// BulkImport creates each lead independently. With UpsertByEmail an existing
// live lead with the same email is updated instead. Row failures are
// collected and never abort the batch.
func (s *Service) BulkImport(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, req transport.BulkImportRequest) (transport.BulkImportResponse, error) {
	if len(req.Leads) == 0 {
		return transport.BulkImportResponse{}, apperr.Validation("leads must not be empty")
	}

	result := transport.BulkImportResponse{Errors: []transport.ItemError{}}
	for i, item := range req.Leads {
		if item.Source == "" {
			item.Source = string(domain.SourceImport)
		}
		updated, err := s.importOne(ctx, tenantID, actorID, item, req.UpsertByEmail)
		s.metrics.BulkItem("import", err == nil)
		if err != nil {
			result.Errors = append(result.Errors, itemError(i, item.Email, err))
			continue
		}
		if updated {
			result.Updated++
		} else {
			result.Created++
		}
	}

	s.log.Info("bulk lead import finished",
		"tenantId", tenantID, "created", result.Created, "updated", result.Updated, "failed", len(result.Errors))
	return result, nil
}

func (s *Service) importOne(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, item transport.CreateLeadRequest, upsert bool) (bool, error) {
	lead, err := s.buildLead(tenantID, item)
	if err != nil {
		return false, err
	}

	if upsert {
		existing, err := s.repo.GetByEmail(ctx, lead.Email, tenantID)
		switch {
		case err == nil && existing.IsDeleted:
			return false, apperr.Conflict("a deleted lead with this email already exists")
		case err == nil:
			_, err := s.mutate(ctx, tenantID, existing.ID, func(l *domain.Lead) error {
				applyImport(l, lead)
				return nil
			})
			return true, err
		case !errors.Is(err, repository.ErrNotFound):
			return false, mapRepoError(err)
		}
	}

	_, err = s.insert(ctx, lead, &actorID)
	return false, err
}

// BulkUpdate applies the same patch to every id.
func (s *Service) BulkUpdate(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, req transport.BulkUpdateRequest) (transport.BulkMutationResponse, error) {
	if len(req.IDs) == 0 {
		return transport.BulkMutationResponse{}, apperr.Validation("ids must not be empty")
	}
	if req.Patch.IsEmpty() {
		return transport.BulkMutationResponse{}, apperr.Validation("patch must change at least one field")
	}
	if err := s.validate(req); err != nil {
		return transport.BulkMutationResponse{}, err
	}

	return s.forEachID(ctx, "update", req.IDs, func(id uuid.UUID) error {
		_, err := s.mutate(ctx, tenantID, id, func(lead *domain.Lead) error {
			applyPatch(lead, req.Patch, &actorID, s.now().UTC())
			return nil
		})
		return err
	}), nil
}

// BulkDelete soft-deletes every id.
func (s *Service) BulkDelete(ctx context.Context, tenantID uuid.UUID, actorID uuid.UUID, ids []uuid.UUID) (transport.BulkMutationResponse, error) {
	if len(ids) == 0 {
		return transport.BulkMutationResponse{}, apperr.Validation("ids must not be empty")
	}

	return s.forEachID(ctx, "delete", ids, func(id uuid.UUID) error {
		return s.SoftDelete(ctx, tenantID, id, actorID)
	}), nil
}

func (s *Service) forEachID(ctx context.Context, operation string, ids []uuid.UUID, fn func(uuid.UUID) error) transport.BulkMutationResponse {
	result := transport.BulkMutationResponse{Errors: []transport.ItemError{}}
	seen := make(map[uuid.UUID]struct{}, len(ids))

	for i, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if ctx.Err() != nil {
			result.Errors = append(result.Errors, itemError(i, id.String(), ctx.Err()))
			continue
		}
		err := fn(id)
		s.metrics.BulkItem(operation, err == nil)
		if err != nil {
			result.Errors = append(result.Errors, itemError(i, id.String(), err))
			continue
		}
		result.Modified++
	}
	return result
}

func itemError(index int, identifier string, err error) transport.ItemError {
	message := "internal error"
	if appErr, ok := apperr.As(err); ok {
		message = appErr.Message
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		message = err.Error()
	}
	return transport.ItemError{Index: index, Identifier: identifier, Message: message}
}
