package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/ecolix/ecolix/jobs"
)

type stubEnqueuer struct {
	payload jobs.OverridesPurgePayload
	err     error
}

func (s *stubEnqueuer) EnqueueOverridesPurge(ctx context.Context, payload jobs.OverridesPurgePayload) (*asynq.TaskInfo, error) {
	s.payload = payload
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "t-1", Queue: jobs.QueueMaintenance}, nil
}

func TestPurgeCommand(t *testing.T) {
	stub := &stubEnqueuer{}
	closed := false
	cmd := NewPurgeCommand(func() (PurgeEnqueuer, func() error, error) {
		return stub, func() error { closed = true; return nil }, nil
	})

	code, out, stderr := run(cmd.Run, "--idempotency-ttl", "48h")
	require.Equal(t, ExitOK, code, stderr)
	require.Contains(t, out, "t-1")
	require.Equal(t, 48*time.Hour, stub.payload.IdempotencyTTL)
	require.True(t, closed)
}

func TestPurgeCommandErrors(t *testing.T) {
	connected := false
	cmd := NewPurgeCommand(func() (PurgeEnqueuer, func() error, error) {
		connected = true
		return &stubEnqueuer{err: errors.New("redis down")}, nil, nil
	})

	code, _, _ := run(cmd.Run, "--idempotency-ttl", "0s")
	require.Equal(t, ExitUsage, code)
	require.False(t, connected)

	code, _, stderr := run(cmd.Run)
	require.Equal(t, ExitError, code)
	require.Contains(t, stderr, "redis down")
}
