// The scheduler binary runs the background side of the system: the asynq
// worker that processes queued ingestion events and the periodic scheduler
// that enqueues conversation retention jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inbox_crm_backend/internal/conversations"
	"inbox_crm_backend/internal/events"
	"inbox_crm_backend/internal/ingestion"
	"inbox_crm_backend/internal/leads"
	leadservice "inbox_crm_backend/internal/leads/service"
	"inbox_crm_backend/internal/scheduler"
	"inbox_crm_backend/internal/tenants"
	"inbox_crm_backend/platform/config"
	"inbox_crm_backend/platform/db"
	"inbox_crm_backend/platform/logger"
	"inbox_crm_backend/platform/validator"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		log.Error("REDIS_URL not configured; scheduler cannot start")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// The worker replays events through the same gateway the HTTP layer uses,
	// so a queued event behaves exactly like a synchronous one. Lead
	// auto-creation still fires because the handlers are registered here too.
	tenantsModule := tenants.NewModule(pool, nil, cfg.GetConnectTokenTTL(), eventBus, val, log)
	conversationsModule := conversations.NewModule(pool, nil, "", eventBus, val, log)
	leadsModule := leads.NewModule(pool, leadservice.NewKeywordPolicy(nil), eventBus, val, log)
	leadsModule.RegisterHandlers(eventBus)
	ingestionModule := ingestion.NewModule(
		pool,
		tenantsModule.Service(),
		conversationsModule.Service(),
		nil,
		false,
		cfg.GetDefaultPhoneRegion(),
		eventBus,
		val,
		log,
	)

	worker, err := scheduler.NewWorker(cfg, ingestionModule.Gateway(), conversationsModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		go func() {
			<-gctx.Done()
			periodic.Shutdown()
		}()
		return periodic.Run()
	})

	log.Info("scheduler running")

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}

	// Give in-flight async event handlers a moment to finish.
	time.Sleep(500 * time.Millisecond)
	log.Info("scheduler shut down")
}
