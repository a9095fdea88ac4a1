package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	convservice "inbox_crm_backend/internal/conversations/service"
	ingestservice "inbox_crm_backend/internal/ingestion/service"
	"inbox_crm_backend/platform/config"
	"inbox_crm_backend/platform/logger"
)

// Worker consumes queued tasks: asynchronous ingestion plus the periodic
// retention jobs.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	gateway  *ingestservice.Gateway
	registry *convservice.Registry
	log      *logger.Logger
}

// NewWorker creates the asynq worker with its task handlers registered.
func NewWorker(cfg config.SchedulerConfig, gateway *ingestservice.Gateway, registry *convservice.Registry, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		gateway:  gateway,
		registry: registry,
		log:      log,
	}

	mux.HandleFunc(TaskIngestEvent, w.handleIngestEvent)
	mux.HandleFunc(TaskArchiveIdle, w.handleArchiveIdle)
	mux.HandleFunc(TaskPurgeExpired, w.handlePurgeExpired)

	return w, nil
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleIngestEvent(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseIngestEventPayload(task)
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	// Ingest is idempotent on channel message ID, so asynq retries after a
	// partial failure are safe.
	_, err = w.gateway.Ingest(ctx, &tenantID, payload.Event)
	return err
}

func (w *Worker) handleArchiveIdle(ctx context.Context, _ *asynq.Task) error {
	_, err := w.registry.ArchiveIdle(ctx)
	return err
}

func (w *Worker) handlePurgeExpired(ctx context.Context, _ *asynq.Task) error {
	_, err := w.registry.PurgeExpired(ctx)
	return err
}
