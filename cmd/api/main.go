package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_backend/internal/activities"
	"crm_backend/internal/adapters"
	"crm_backend/internal/adapters/storage"
	"crm_backend/internal/analytics"
	"crm_backend/internal/documents"
	"crm_backend/internal/events"
	apphttp "crm_backend/internal/http"
	"crm_backend/internal/http/router"
	"crm_backend/internal/leads"
	"crm_backend/internal/notification"
	"crm_backend/internal/sales"
	"crm_backend/platform/cache"
	"crm_backend/platform/config"
	"crm_backend/platform/db"
	"crm_backend/platform/errtrack"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "version", version)

	flush := errtrack.Init(cfg, version, log)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if cfg.MigrateOnStart {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	m := metrics.New()

	appCache, closeCache := initCache(ctx, cfg, log)
	defer closeCache()

	store := initFileStore(ctx, cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module turns domain events into in-app notifications.
	notificationModule := notification.New(pool, log)
	notificationModule.RegisterHandlers(eventBus)

	leadsModule := leads.NewModule(leads.Deps{
		Pool:        pool,
		EventBus:    eventBus,
		Validator:   val,
		Logger:      log,
		Cache:       appCache,
		CacheTTL:    cfg.GetCacheTTL(),
		Metrics:     m,
		PhoneRegion: cfg.GetPhoneRegion(),
	})

	// Anti-corruption layer: other modules reach the lead only through these.
	leadActivities := adapters.NewLeadActivityRecorder(leadsModule.ManagementService())
	leadEngagement := adapters.NewLeadEngagementRecorder(leadsModule.ManagementService())

	activitiesModule := activities.NewModule(activities.Deps{
		Pool:      pool,
		EventBus:  eventBus,
		Validator: val,
		Logger:    log,
		Metrics:   m,
		Leads:     leadActivities,
		Users:     adapters.NewUserDirectory(pool),
		Recorder:  leadActivities,
	})

	documentsModule := documents.NewModule(documents.Deps{
		Pool:      pool,
		EventBus:  eventBus,
		Validator: val,
		Logger:    log,
		Metrics:   m,
		Config:    cfg,
		Store:     store,
		Recorder:  leadEngagement,
	})

	salesModule := sales.NewModule(sales.Deps{
		Pool:      pool,
		EventBus:  eventBus,
		Validator: val,
		Logger:    log,
		Metrics:   m,
		Leads:     leadEngagement,
	})

	analyticsModule := analytics.NewModule(analytics.Deps{
		Pool:      pool,
		Validator: val,
		Logger:    log,
		Metrics:   m,
		Cache:     appCache,
		Revenue:   salesModule.Service(),
	})

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Metrics:  m,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			activitiesModule,
			documentsModule,
			salesModule,
			analyticsModule,
			notificationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initCache connects the redis cache. Without REDIS_URL, or when redis is
// unreachable, caching is disabled rather than failing startup.
func initCache(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (cache.Cache, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; caching disabled")
		return cache.Noop{}, func() {}
	}

	r, err := cache.NewRedis(ctx, cfg.GetRedisURL(), cfg.GetRedisTLSInsecure(), "crm:")
	if err != nil {
		log.Error("failed to connect redis cache; caching disabled", "error", err)
		return cache.Noop{}, func() {}
	}
	log.Info("redis cache connected")
	return r, func() { _ = r.Close() }
}

// initFileStore returns nil when MinIO is not configured; document uploads
// then answer with a bad request.
func initFileStore(ctx context.Context, cfg storage.Config, log *logger.Logger) storage.FileStore {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; document uploads disabled")
		return nil
	}

	minioStore, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure documents bucket", 5, 2*time.Second, func() error {
		return minioStore.EnsureBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketDocuments())
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("storage service initialized", "bucket", cfg.GetMinioBucketDocuments())
	return minioStore
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
