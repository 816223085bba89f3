// Package leads provides the lead lifecycle bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"time"

	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/internal/leads/handler"
	"crm_backend/internal/leads/management"
	"crm_backend/internal/leads/repository"
	"crm_backend/platform/cache"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	management *management.Service
}

// Deps are the shared services the leads module needs.
type Deps struct {
	Pool        *pgxpool.Pool
	EventBus    events.Bus
	Validator   *validator.Validator
	Logger      *logger.Logger
	Cache       cache.Cache
	CacheTTL    time.Duration
	Metrics     *metrics.Metrics
	PhoneRegion string
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(deps Deps) *Module {
	repo := repository.New(deps.Pool)

	mgmtSvc := management.New(repo, deps.EventBus, deps.Validator, deps.Logger.With("module", "leads"), deps.PhoneRegion)
	if deps.Cache != nil {
		mgmtSvc.SetCache(deps.Cache, deps.CacheTTL)
	}
	mgmtSvc.SetMetrics(deps.Metrics)

	return &Module{
		handler:    handler.New(mgmtSvc, deps.Validator),
		management: mgmtSvc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// ManagementService returns the lead management service for adapters.
func (m *Module) ManagementService() *management.Service {
	return m.management
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leadsGroup := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leadsGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
