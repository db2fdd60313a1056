package overrides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/shared"
)

// Directory resolves override targets.
type Directory interface {
	FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error)
}

// Service applies override mutations on behalf of an authorised actor. Callers
// are expected to have passed the permission_overrides guard already.
type Service struct {
	store  Store
	users  Directory
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the override service.
func NewService(store Store, users Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, users: users, logger: logger, now: time.Now}
}

// WithClock replaces the clock, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// ListActive satisfies rbac.OverrideReader so the context builder can read
// through the service.
func (s *Service) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	return s.store.ListActive(ctx, userID, at)
}

// List returns the overrides of a target user. Expired rows are included only
// when includeExpired is set.
func (s *Service) List(ctx context.Context, actor rbac.Principal, userID int64, includeExpired bool) ([]rbac.Override, error) {
	if _, err := s.target(ctx, actor, userID); err != nil {
		return nil, err
	}
	if includeExpired {
		return s.store.ListForUser(ctx, userID)
	}
	return s.store.ListActive(ctx, userID, s.now().UTC())
}

// Upsert creates or replaces the override of userID for (resource, action).
// A non-empty idempotencyKey is claimed in the same transaction.
func (s *Service) Upsert(ctx context.Context, actor rbac.Principal, userID int64, in Input, idempotencyKey string) (Result, error) {
	return s.write(ctx, actor, userID, in, idempotencyKey, false)
}

// Create stores a new override and fails with ErrExists when userID already
// holds one for (resource, action).
func (s *Service) Create(ctx context.Context, actor rbac.Principal, userID int64, in Input, idempotencyKey string) (Result, error) {
	return s.write(ctx, actor, userID, in, idempotencyKey, true)
}

func (s *Service) write(ctx context.Context, actor rbac.Principal, userID int64, in Input, idempotencyKey string, insertOnly bool) (Result, error) {
	now := s.now().UTC()
	in, err := in.normalize(now)
	if err != nil {
		return Result{}, err
	}
	target, err := s.mutable(ctx, actor, userID)
	if err != nil {
		return Result{}, err
	}
	scope := *in.Scope

	crossing := in.Effect == rbac.EffectGrant && rbac.BreachesWall(target.Role, in.Resource)
	if crossing {
		s.logger.Warn("override grants across the wall",
			slog.Int64("actor_id", actor.ID), slog.Int64("user_id", userID),
			slog.String("role", target.Role.String()), slog.String("resource", in.Resource.String()),
			slog.String("action", in.Action.String()))
	}

	var result Result
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if key := strings.TrimSpace(idempotencyKey); key != "" {
			if err := tx.ClaimIdempotencyKey(ctx, fmt.Sprintf("%d:%s", actor.ID, key)); err != nil {
				return err
			}
		}
		stored, err := tx.Upsert(ctx, rbac.Override{
			UserID:    userID,
			Resource:  in.Resource,
			Action:    in.Action,
			Effect:    in.Effect,
			Scope:     scope,
			ExpiresAt: in.ExpiresAt,
			Reason:    in.Reason,
			CreatedBy: actor.ID,
		})
		if err != nil {
			return err
		}
		if insertOnly && !stored.Created {
			return fmt.Errorf("%w: %s:%s for user %d", ErrExists, in.Resource, in.Action, userID)
		}
		result = stored
		meta := map[string]any{
			"user_id":      userID,
			"resource":     in.Resource.String(),
			"action":       in.Action.String(),
			"effect":       in.Effect.String(),
			"scope":        scope.String(),
			"created":      stored.Created,
			"crosses_wall": crossing,
		}
		if in.ExpiresAt != nil {
			meta["expires_at"] = in.ExpiresAt.Format(time.RFC3339)
		}
		if in.Reason != "" {
			meta["reason"] = in.Reason
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: target.TenantID,
			ActorID:  actor.ID,
			Action:   "override.upsert",
			Entity:   "permission_overrides",
			EntityID: stored.Override.ID,
			Meta:     meta,
			At:       now,
		})
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("override stored",
		slog.Int64("actor_id", actor.ID), slog.Int64("user_id", userID),
		slog.String("override_id", result.Override.ID), slog.Bool("created", result.Created))
	return result, nil
}

// Delete removes override id from userID. Ids belonging to another user are
// reported as not found.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, userID int64, id string) error {
	target, err := s.mutable(ctx, actor, userID)
	if err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.Delete(ctx, userID, id)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: target.TenantID,
			ActorID:  actor.ID,
			Action:   "override.delete",
			Entity:   "permission_overrides",
			EntityID: removed.ID,
			Meta: map[string]any{
				"user_id":  userID,
				"resource": removed.Resource.String(),
				"action":   removed.Action.String(),
				"effect":   removed.Effect.String(),
			},
			At: s.now().UTC(),
		})
	})
}

// PurgeExpired deletes overrides that expired at or before `at`.
func (s *Service) PurgeExpired(ctx context.Context, at time.Time) (int64, error) {
	return s.store.PurgeExpired(ctx, at)
}

// mutable resolves a target whose overrides actor may change. Nobody edits
// their own overrides, and only cross roles edit those of a cross-role holder.
func (s *Service) mutable(ctx context.Context, actor rbac.Principal, userID int64) (rbac.Principal, error) {
	target, err := s.target(ctx, actor, userID)
	if err != nil {
		return rbac.Principal{}, err
	}
	if target.ID == actor.ID {
		return rbac.Principal{}, ErrSelfOverride
	}
	if target.Role.CrossesWall() && !actor.Role.CrossesWall() {
		return rbac.Principal{}, fmt.Errorf("%w: %s may not change overrides of %s", ErrProtectedTarget, actor.Role, target.Role)
	}
	return target, nil
}

// target resolves userID and hides users of other schools from actors that do
// not cross tenants.
func (s *Service) target(ctx context.Context, actor rbac.Principal, userID int64) (rbac.Principal, error) {
	if userID <= 0 {
		return rbac.Principal{}, fmt.Errorf("%w: user id required", ErrInvalid)
	}
	p, err := s.users.FindPrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			return rbac.Principal{}, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return rbac.Principal{}, err
	}
	if p.TenantID != actor.TenantID && !actor.Role.CrossesWall() {
		return rbac.Principal{}, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return p, nil
}
