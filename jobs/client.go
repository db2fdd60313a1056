package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// purgeUniqueness collapses repeated manual purge requests into one task.
const purgeUniqueness = time.Minute

// Client submits tasks to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq backed Client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueOverridesPurge schedules an immediate purge run. A request arriving
// while an identical task is pending returns asynq.ErrDuplicateTask.
func (c *Client) EnqueueOverridesPurge(ctx context.Context, payload OverridesPurgePayload) (*asynq.TaskInfo, error) {
	task, err := NewOverridesPurgeTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Unique(purgeUniqueness))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// RedisOpt converts go-redis options into the asynq connection options so the
// queue and the session store read one REDIS_ADDR.
func RedisOpt(o *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Network:   o.Network,
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}
