package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ecolix/ecolix/internal/jobs"
)

// DefaultIdempotencyTTL is used when the payload does not set one.
const DefaultIdempotencyTTL = 7 * 24 * time.Hour

// OverridePurger deletes expired overrides.
type OverridePurger interface {
	PurgeExpired(ctx context.Context, at time.Time) (int64, error)
}

// KeyCleaner deletes idempotency keys older than a duration.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OverridesPurgeJob handles TaskOverridesPurge.
type OverridesPurgeJob struct {
	Overrides OverridePurger
	Keys      KeyCleaner
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewOverridesPurgeJob wires the purge handler.
func NewOverridesPurgeJob(overrides OverridePurger, keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverridesPurgeJob {
	return &OverridesPurgeJob{
		Overrides: overrides,
		Keys:      keys,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock replaces the clock, mainly for tests.
func (j *OverridesPurgeJob) WithClock(now func() time.Time) *OverridesPurgeJob {
	clone := *j
	clone.clock = now
	return &clone
}

// Handle executes one purge run.
func (j *OverridesPurgeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Overrides == nil {
		return errors.New("overrides purge: handler not configured")
	}
	var payload OverridesPurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("overrides purge: decode payload: %w", asynq.SkipRetry)
		}
	}
	if payload.IdempotencyTTL <= 0 {
		payload.IdempotencyTTL = DefaultIdempotencyTTL
	}

	tracker := j.Metrics.Track(TaskOverridesPurge)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger()

	at := j.clock()
	removed, err := j.Overrides.PurgeExpired(ctx, at)
	if err != nil {
		logger.Error("purge expired overrides", slog.Any("error", err))
		return err
	}
	j.Metrics.AddPurged("permission_overrides", removed)

	var keys int64
	if j.Keys != nil {
		keys, err = j.Keys.Cleanup(ctx, payload.IdempotencyTTL)
		if err != nil {
			logger.Error("cleanup idempotency keys", slog.Any("error", err))
			return err
		}
		j.Metrics.AddPurged("idempotency_keys", keys)
	}
	logger.Info("overrides purge complete",
		slog.Time("at", at), slog.Int64("overrides", removed), slog.Int64("idempotency_keys", keys))
	return nil
}

func (j *OverridesPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
