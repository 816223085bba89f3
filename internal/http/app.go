// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"crm_backend/internal/events"
	"crm_backend/platform/config"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker is pinged by the readiness endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by main and handed to the router.
type App struct {
	Config   RouterConfig
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Health   HealthChecker
	EventBus events.Bus
	Modules  []Module
}
