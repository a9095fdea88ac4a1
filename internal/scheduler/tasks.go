// Package scheduler provides the asynq task definitions, the enqueue client,
// and the background worker running ingestion and retention jobs.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"inbox_crm_backend/internal/ingestion/transport"
)

// Task type names.
const (
	TaskIngestEvent  = "ingest.event"
	TaskArchiveIdle  = "conversations.archive_idle"
	TaskPurgeExpired = "conversations.purge"
)

// IngestEventPayload carries one raw channel event through the task queue.
type IngestEventPayload struct {
	TenantID string             `json:"tenantId"`
	Event    transport.RawEvent `json:"event"`
}

// NewIngestEventTask builds the asynq task for one raw event.
func NewIngestEventTask(payload IngestEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIngestEvent, data), nil
}

// ParseIngestEventPayload decodes an ingest event task.
func ParseIngestEventPayload(task *asynq.Task) (IngestEventPayload, error) {
	var payload IngestEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return IngestEventPayload{}, err
	}
	return payload, nil
}

// NewArchiveIdleTask builds the periodic idle-archival task.
func NewArchiveIdleTask() *asynq.Task {
	return asynq.NewTask(TaskArchiveIdle, nil)
}

// NewPurgeExpiredTask builds the periodic retention-purge task.
func NewPurgeExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeExpired, nil)
}
