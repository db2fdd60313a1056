package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultMaxBatch bounds the number of checks accepted by CheckBatch.
const DefaultMaxBatch = 100

const unavailableReason = "authorization unavailable"

// ServiceConfig tunes the permission service.
type ServiceConfig struct {
	// FailClosed turns store failures into denials instead of errors.
	FailClosed bool
	MaxBatch   int
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Service answers single and batch permission checks.
type Service struct {
	builder    *ContextBuilder
	evaluator  *Evaluator
	failClosed bool
	maxBatch   int
	metrics    *Metrics
	logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(builder *ContextBuilder, evaluator *Evaluator, cfg ServiceConfig) *Service {
	if evaluator == nil {
		evaluator = NewEvaluator(nil)
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		builder:    builder,
		evaluator:  evaluator,
		failClosed: cfg.FailClosed,
		maxBatch:   cfg.MaxBatch,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Catalog exposes the grant table used by the service.
func (s *Service) Catalog() *Catalog { return s.evaluator.Catalog() }

// FailClosed reports whether store failures are rendered as denials.
func (s *Service) FailClosed() bool { return s.failClosed }

// Context builds the permission context for a principal.
func (s *Service) Context(ctx context.Context, principalID int64) (PermissionContext, error) {
	pc, err := s.builder.Build(ctx, principalID)
	if err != nil {
		switch {
		case errors.Is(err, ErrStoreFailure):
			s.metrics.observeStoreFailure()
			s.logger.Error("rbac build context", slog.Int64("principal_id", principalID), slog.Any("error", err))
		case errors.Is(err, ErrUserNotFound):
			s.logger.Warn("rbac principal not found", slog.Int64("principal_id", principalID), slog.Any("error", err))
		}
		return PermissionContext{}, err
	}
	return pc, nil
}

// Evaluate renders one decision against an already built context.
func (s *Service) Evaluate(pc PermissionContext, check Check) (Decision, error) {
	d, err := s.evaluator.Evaluate(pc, check.Resource, check.Action)
	if err != nil {
		return Decision{}, err
	}
	s.metrics.observe(d)
	return d, nil
}

// Check builds a context and evaluates a single check.
func (s *Service) Check(ctx context.Context, principalID int64, check Check) (Decision, error) {
	decisions, err := s.CheckBatch(ctx, principalID, []Check{check})
	if err != nil {
		return Decision{}, err
	}
	return decisions[0], nil
}

// CheckBatch builds one context and evaluates every check in input order.
// An invalid pair fails the whole batch before any context is built.
func (s *Service) CheckBatch(ctx context.Context, principalID int64, checks []Check) ([]Decision, error) {
	if len(checks) == 0 {
		return nil, fmt.Errorf("%w: no checks supplied", ErrInvalidRequest)
	}
	if len(checks) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d checks exceeds the limit of %d", ErrInvalidRequest, len(checks), s.maxBatch)
	}
	for i, c := range checks {
		if !c.Resource.Valid() || !c.Resource.Supports(c.Action) {
			return nil, fmt.Errorf("%w: check %d (%s)", ErrInvalidRequest, i, c)
		}
	}

	pc, err := s.Context(ctx, principalID)
	if err != nil {
		if s.failClosed && errors.Is(err, ErrStoreFailure) {
			return unavailable(checks), nil
		}
		return nil, err
	}

	out := make([]Decision, len(checks))
	for i, c := range checks {
		d, err := s.Evaluate(pc, c)
		if err != nil {
			return nil, fmt.Errorf("check %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

func unavailable(checks []Check) []Decision {
	out := make([]Decision, len(checks))
	for i, c := range checks {
		out[i] = Decision{Resource: c.Resource, Action: c.Action, Reason: unavailableReason, Source: SourceUnavailable}
	}
	return out
}
