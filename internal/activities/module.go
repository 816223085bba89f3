// Package activities provides the activity scheduling module.
package activities

import (
	"crm_backend/internal/activities/handler"
	"crm_backend/internal/activities/repository"
	"crm_backend/internal/activities/service"
	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

// Deps wires the activity module to the rest of the application. Leads,
// Users and Recorder are ports implemented by adapters.
type Deps struct {
	Pool      *pgxpool.Pool
	EventBus  events.Bus
	Validator *validator.Validator
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Leads     service.LeadDirectory
	Users     service.UserDirectory
	Recorder  service.LeadActivityRecorder
}

func NewModule(deps Deps) *Module {
	repo := repository.New(deps.Pool)
	svc := service.New(repo, deps.Leads, deps.Users, deps.Recorder, deps.EventBus, deps.Validator, deps.Logger.With("module", "activities"))
	svc.SetMetrics(deps.Metrics)

	return &Module{
		handler: handler.New(svc, deps.Validator),
		service: svc,
	}
}

func (m *Module) Name() string {
	return "activities"
}

// Service exposes the activity service to the reminder scheduler.
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/activities"))
}

var _ apphttp.Module = (*Module)(nil)
