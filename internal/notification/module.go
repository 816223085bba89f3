// Package notification turns domain events into in-app notifications for the
// user they concern.
package notification

import (
	"context"
	"fmt"

	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/internal/notification/handler"
	"crm_backend/internal/notification/inapp"
	"crm_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	resourceActivity = "activity"
	resourceLead     = "lead"
	resourceDocument = "document"
)

type Module struct {
	inapp   *inapp.Service
	handler *handler.HTTPHandler
	log     *logger.Logger
}

func New(pool *pgxpool.Pool, log *logger.Logger) *Module {
	return newModule(inapp.NewService(inapp.NewRepository(pool), log), log)
}

func newModule(svc *inapp.Service, log *logger.Logger) *Module {
	if log == nil {
		log = logger.Discard()
	}
	return &Module{
		inapp:   svc,
		handler: handler.NewHTTPHandler(svc),
		log:     log.With("module", "notification"),
	}
}

func (m *Module) Name() string {
	return "notification"
}

// InApp exposes the inbox service.
func (m *Module) InApp() *inapp.Service {
	return m.inapp
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// RegisterHandlers subscribes the module to the events it turns into
// notifications.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ActivityReminderDue{}.EventName(), events.HandlerFunc(m.handleActivityReminderDue))
	bus.Subscribe(events.LeadConverted{}.EventName(), events.HandlerFunc(m.handleLeadConverted))
	bus.Subscribe(events.DocumentSigned{}.EventName(), events.HandlerFunc(m.handleDocumentSigned))
}

func (m *Module) handleActivityReminderDue(ctx context.Context, event events.Event) error {
	e, ok := event.(events.ActivityReminderDue)
	if !ok {
		return nil
	}
	if e.AssignedTo == nil {
		m.log.Debug("reminder has no assignee, skipping notification", "activityId", e.ActivityID)
		return nil
	}

	content := "Activity is due soon."
	if !e.DueDate.IsZero() {
		content = "Due " + e.DueDate.UTC().Format("Mon 2 Jan 15:04 MST") + "."
	}
	activityID := e.ActivityID
	_, err := m.inapp.Send(ctx, inapp.SendParams{
		TenantID:     e.TenantID,
		UserID:       *e.AssignedTo,
		Title:        "Reminder: " + e.Subject,
		Content:      content,
		ResourceID:   &activityID,
		ResourceType: resourceActivity,
		Category:     inapp.CategoryWarning,
	})
	return err
}

func (m *Module) handleLeadConverted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadConverted)
	if !ok || !e.FirstConversion || e.Owner == nil {
		return nil
	}

	leadID := e.LeadID
	_, err := m.inapp.Send(ctx, inapp.SendParams{
		TenantID:     e.TenantID,
		UserID:       *e.Owner,
		Title:        "Lead converted",
		Content:      fmt.Sprintf("Converted as %s with a value of %.2f.", e.ConversionType, e.Value),
		ResourceID:   &leadID,
		ResourceType: resourceLead,
		Category:     inapp.CategorySuccess,
	})
	return err
}

func (m *Module) handleDocumentSigned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.DocumentSigned)
	if !ok || e.CreatedBy == nil {
		return nil
	}

	documentID := e.DocumentID
	_, err := m.inapp.Send(ctx, inapp.SendParams{
		TenantID:     e.TenantID,
		UserID:       *e.CreatedBy,
		Title:        "Document signed",
		Content:      "Every requested signer has signed.",
		ResourceID:   &documentID,
		ResourceType: resourceDocument,
		Category:     inapp.CategorySuccess,
	})
	return err
}

var _ apphttp.Module = (*Module)(nil)
