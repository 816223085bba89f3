package http

import (
	"crm_backend/platform/config"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups shared by all modules.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is /api/v1 without authentication; used for public share links.
	V1 *gin.RouterGroup
	// Protected is /api/v1 behind AuthRequired.
	Protected *gin.RouterGroup
	Config    config.JWTConfig
}
