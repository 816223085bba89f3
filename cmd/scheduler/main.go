package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_backend/internal/activities"
	"crm_backend/internal/adapters"
	"crm_backend/internal/events"
	"crm_backend/internal/leads"
	"crm_backend/internal/notification"
	"crm_backend/internal/scheduler"
	"crm_backend/platform/cache"
	"crm_backend/platform/config"
	"crm_backend/platform/db"
	"crm_backend/platform/errtrack"
	"crm_backend/platform/logger"
	"crm_backend/platform/metrics"
	"crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "version", version)

	flush := errtrack.Init(cfg, version, log)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()
	val := validator.New()
	m := metrics.New()

	notification.New(pool, log).RegisterHandlers(eventBus)

	// Worker-side activity wiring (no HTTP handlers required).
	leadsModule := leads.NewModule(leads.Deps{
		Pool:        pool,
		EventBus:    eventBus,
		Validator:   val,
		Logger:      log,
		Cache:       cache.Noop{},
		Metrics:     m,
		PhoneRegion: cfg.GetPhoneRegion(),
	})
	leadActivities := adapters.NewLeadActivityRecorder(leadsModule.ManagementService())
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
	activitySvc := activitiesModule.Service()

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		panic("failed to initialize reminder scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	sweep := scheduler.NewReminderSweep(activitySvc, client, cfg.GetReminderLookahead(), log.With("component", "reminder-sweep"))
	sweep.SetMetrics(m)
	if err := sweep.Start(ctx, cfg.GetReminderSweepSpec()); err != nil {
		log.Error("failed to schedule reminder sweep", "error", err, "spec", cfg.GetReminderSweepSpec())
		panic("failed to schedule reminder sweep: " + err.Error())
	}
	log.Info("reminder sweep scheduled", "spec", cfg.GetReminderSweepSpec(), "lookahead", cfg.GetReminderLookahead())

	worker, err := scheduler.NewWorker(cfg, scheduler.NewReminderHandler(activitySvc, eventBus, log), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
