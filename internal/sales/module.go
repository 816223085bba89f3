// Package sales provides the sales module.
package sales

import (
	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/internal/sales/handler"
	"crm_backend/internal/sales/repository"
	"crm_backend/internal/sales/service"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

type Deps struct {
	Pool      *pgxpool.Pool
	EventBus  events.Bus
	Validator *validator.Validator
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Leads     service.LeadDirectory
}

// NewModule builds the module and subscribes it to lead conversions.
func NewModule(deps Deps) *Module {
	svc := service.New(repository.New(deps.Pool), deps.Leads, deps.Validator, deps.Logger.With("module", "sales"))
	svc.SetMetrics(deps.Metrics)
	deps.EventBus.Subscribe(events.LeadConverted{}.EventName(), svc)

	return &Module{
		handler: handler.New(svc),
		service: svc,
	}
}

func (m *Module) Name() string {
	return "sales"
}

func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/sales"))
}

var _ apphttp.Module = (*Module)(nil)
