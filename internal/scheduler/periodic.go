package scheduler

import (
	"fmt"

	"github.com/hibiken/asynq"

	"inbox_crm_backend/platform/config"
)

// NewPeriodic creates the asynq scheduler registering the recurring retention
// jobs: hourly idle archival and a daily purge sweep.
func NewPeriodic(cfg config.SchedulerConfig) (*asynq.Scheduler, error) {
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

	scheduler := asynq.NewScheduler(opt, nil)

	if _, err := scheduler.Register("@every 1h", NewArchiveIdleTask(), asynq.Queue(queue)); err != nil {
		return nil, err
	}
	if _, err := scheduler.Register("@every 24h", NewPurgeExpiredTask(), asynq.Queue(queue)); err != nil {
		return nil, err
	}

	return scheduler, nil
}
