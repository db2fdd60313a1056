package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/ecolix/ecolix/jobs"
)

// PurgeEnqueuer submits an override purge run.
type PurgeEnqueuer interface {
	EnqueueOverridesPurge(ctx context.Context, payload jobs.OverridesPurgePayload) (*asynq.TaskInfo, error)
}

// NewPurgeCommand returns the purge subcommand. connect is only called once
// flags parse cleanly.
func NewPurgeCommand(connect func() (PurgeEnqueuer, func() error, error)) Command {
	return Command{
		Name:    "purge",
		Summary: "enqueue removal of expired overrides and stale idempotency keys",
		Run: func(ctx context.Context, args []string, streams Streams) int {
			streams = streams.withDefaults()
			fs := pflag.NewFlagSet("purge", pflag.ContinueOnError)
			ttl := fs.Duration("idempotency-ttl", jobs.DefaultIdempotencyTTL, "age after which idempotency keys are deleted")
			if code, ok := parseFlags(fs, args, streams.Stderr); !ok {
				return code
			}
			if *ttl <= 0 {
				_, _ = fmt.Fprintln(streams.Stderr, "purge: --idempotency-ttl must be positive")
				return ExitUsage
			}
			enq, closeFn, err := connect()
			if err != nil {
				_, _ = fmt.Fprintf(streams.Stderr, "purge: %v\n", err)
				return ExitError
			}
			if closeFn != nil {
				defer func() { _ = closeFn() }()
			}
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			info, err := enq.EnqueueOverridesPurge(ctx, jobs.OverridesPurgePayload{IdempotencyTTL: *ttl})
			if err != nil {
				_, _ = fmt.Fprintf(streams.Stderr, "purge: %v\n", err)
				return ExitError
			}
			_, _ = fmt.Fprintf(streams.Stdout, "enqueued %s on %s\n", info.ID, info.Queue)
			return ExitOK
		},
	}
}
