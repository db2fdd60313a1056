package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueMaintenance carries housekeeping tasks such as the override purge.
	QueueMaintenance = "maintenance"
	// TaskOverridesPurge removes expired permission overrides and stale
	// idempotency keys.
	TaskOverridesPurge = "authz:overrides_purge"
)

// OverridesPurgePayload tunes a purge run. Zero values use the job defaults.
type OverridesPurgePayload struct {
	// IdempotencyTTL is how long claimed idempotency keys are kept.
	IdempotencyTTL time.Duration `json:"idempotency_ttl,omitempty"`
}

// NewOverridesPurgeTask constructs the purge task.
func NewOverridesPurgeTask(payload OverridesPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverridesPurge, data,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	), nil
}
