// Package analytics provides the sales dashboard module.
package analytics

import (
	"crm_backend/internal/analytics/handler"
	"crm_backend/internal/analytics/repository"
	"crm_backend/internal/analytics/service"
	apphttp "crm_backend/internal/http"
	"crm_backend/platform/cache"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
}

// Deps wires the analytics module. Revenue is usually the sales service.
type Deps struct {
	Pool      *pgxpool.Pool
	Validator *validator.Validator
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Cache     cache.Cache
	Revenue   service.RevenueSource
}

func NewModule(deps Deps) *Module {
	svc := service.New(repository.New(deps.Pool), deps.Revenue, deps.Logger.With("module", "analytics"))
	if deps.Cache != nil {
		svc.SetCache(deps.Cache)
	}
	svc.SetMetrics(deps.Metrics)

	return &Module{handler: handler.New(svc, deps.Validator)}
}

func (m *Module) Name() string {
	return "analytics"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/analytics"))
}

var _ apphttp.Module = (*Module)(nil)
