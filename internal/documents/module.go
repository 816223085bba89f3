// Package documents provides the document engagement module.
package documents

import (
	"crm_backend/internal/adapters/storage"
	"crm_backend/internal/documents/handler"
	"crm_backend/internal/documents/repository"
	"crm_backend/internal/documents/service"
	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/platform/config"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

// Deps wires the documents module. Store may be nil when object storage is
// not configured.
type Deps struct {
	Pool      *pgxpool.Pool
	EventBus  events.Bus
	Validator *validator.Validator
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Config    config.DocumentConfig
	Store     storage.FileStore
	Recorder  service.LeadEngagementRecorder
}

func NewModule(deps Deps) *Module {
	repo := repository.New(deps.Pool)
	svc := service.New(repo, deps.Store, deps.Recorder, deps.EventBus, deps.Validator, deps.Logger.With("module", "documents"))
	svc.SetMetrics(deps.Metrics)
	svc.SetPublicBaseURL(deps.Config.GetPublicBaseURL())

	return &Module{
		handler: handler.New(svc, deps.Validator),
		service: svc,
	}
}

func (m *Module) Name() string {
	return "documents"
}

func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/documents"))
	m.handler.RegisterPublicRoutes(ctx.V1.Group("/public"))
}

var _ apphttp.Module = (*Module)(nil)
