// Package errtrack reports panics and server errors to Sentry when a DSN is
// configured. Without a DSN every function here is a no-op.
package errtrack

import (
	"fmt"
	"net/http"
	"time"

	"crm_backend/platform/config"
	"crm_backend/platform/logger"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// Init configures the global Sentry client. The returned func flushes
// buffered events and should be deferred by main.
func Init(cfg config.SentryConfig, release string, log *logger.Logger) func() {
	if cfg.GetSentryDSN() == "" {
		log.Info("sentry disabled, no DSN configured")
		return func() {}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.GetSentryDSN(),
		Environment:      cfg.GetEnv(),
		Release:          release,
		TracesSampleRate: 0.1,
		AttachStacktrace: true,
	})
	if err != nil {
		log.Warn("failed to initialize sentry", "error", err)
		return func() {}
	}

	log.Info("sentry initialized", "environment", cfg.GetEnv())
	return func() { sentry.Flush(2 * time.Second) }
}

// Recovery converts panics into 500 responses and reports them.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)

		defer func() {
			if r := recover(); r != nil {
				hub.RecoverWithContext(c.Request.Context(), r)
				log.Error("panic recovered", "panic", fmt.Sprint(r), "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError && len(c.Errors) > 0 {
			hub.CaptureException(c.Errors.Last().Err)
		}
	}
}

// Capture reports err outside the request path, e.g. from workers.
func Capture(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}
