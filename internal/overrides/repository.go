package overrides

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecolix/ecolix/internal/platform/db"
	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/shared"
)

// idempotencyModule namespaces override keys in idempotency_keys.
const idempotencyModule = "permission_overrides"

// Store is the read side used by the service and the purge job.
type Store interface {
	ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error)
	ListForUser(ctx context.Context, userID int64) ([]rbac.Override, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that run inside one transaction.
type TxRepository interface {
	Upsert(ctx context.Context, o rbac.Override) (Result, error)
	Delete(ctx context.Context, userID int64, id string) (rbac.Override, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
	ClaimIdempotencyKey(ctx context.Context, key string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool  *pgxpool.Pool
	audit *shared.AuditLogger
	idem  *shared.IdempotencyStore
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:  pool,
		audit: shared.NewAuditLogger(pool),
		idem:  shared.NewIdempotencyStore(pool),
	}
}

type txRepo struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
	idem  *shared.IdempotencyStore
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, audit: r.audit.WithTx(tx), idem: r.idem.WithTx(tx)})
	})
}

const overrideColumns = `id::text, user_id, resource, action, effect, scope, expires_at, reason, created_by, created_at, updated_at`

// ListActive returns one override per (resource, action), the most recently
// updated, among those not expired at `at`.
func (r *Repository) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (resource, action) `+overrideColumns+`
FROM permission_overrides
WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
ORDER BY resource, action, updated_at DESC, id DESC`, userID, at)
	if err != nil {
		return nil, fmt.Errorf("overrides: list active: %w", err)
	}
	return collect(rows)
}

// ListForUser returns every stored override of the user, expired ones included.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]rbac.Override, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+overrideColumns+`
FROM permission_overrides
WHERE user_id = $1
ORDER BY resource, action`, userID)
	if err != nil {
		return nil, fmt.Errorf("overrides: list: %w", err)
	}
	return collect(rows)
}

// PurgeExpired removes overrides whose expiry is at or before `before`.
func (r *Repository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permission_overrides WHERE expires_at IS NOT NULL AND expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("overrides: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Upsert inserts the override or replaces the fields of the row holding the
// same (user_id, resource, action); the stored id is kept on update.
func (t *txRepo) Upsert(ctx context.Context, o rbac.Override) (Result, error) {
	var (
		inserted bool
		scope    *string
	)
	if o.Effect == rbac.EffectGrant {
		s := o.Scope.String()
		scope = &s
	}
	row := t.tx.QueryRow(ctx, `INSERT INTO permission_overrides
	(id, user_id, resource, action, effect, scope, expires_at, reason, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
ON CONFLICT (user_id, resource, action) DO UPDATE SET
	effect = EXCLUDED.effect,
	scope = EXCLUDED.scope,
	expires_at = EXCLUDED.expires_at,
	reason = EXCLUDED.reason,
	created_by = EXCLUDED.created_by,
	updated_at = NOW()
RETURNING `+overrideColumns+`, (xmax = 0) AS inserted`,
		uuid.NewString(), o.UserID, o.Resource.String(), o.Action.String(), o.Effect.String(), scope, o.ExpiresAt, o.Reason, o.CreatedBy)

	stored, err := scanOverride(row, &inserted)
	if err != nil {
		return Result{}, fmt.Errorf("overrides: upsert: %w", err)
	}
	return Result{Override: stored, Created: inserted}, nil
}

// Delete removes override id only when it belongs to userID.
func (t *txRepo) Delete(ctx context.Context, userID int64, id string) (rbac.Override, error) {
	if _, err := uuid.Parse(id); err != nil {
		return rbac.Override{}, ErrNotFound
	}
	row := t.tx.QueryRow(ctx, `DELETE FROM permission_overrides WHERE id = $1 AND user_id = $2 RETURNING `+overrideColumns, id, userID)
	o, err := scanOverride(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Override{}, ErrNotFound
		}
		return rbac.Override{}, fmt.Errorf("overrides: delete: %w", err)
	}
	return o, nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return t.audit.Record(ctx, log)
}

func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key string) error {
	err := t.idem.Claim(ctx, idempotencyModule, key)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return ErrReplayed
	}
	return err
}

func collect(rows pgx.Rows) ([]rbac.Override, error) {
	defer rows.Close()
	var out []rbac.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanOverride(row pgx.Row, extra ...any) (rbac.Override, error) {
	var (
		o                        rbac.Override
		resource, action, effect string
		scope, reason            *string
	)
	dest := append([]any{&o.ID, &o.UserID, &resource, &action, &effect, &scope, &o.ExpiresAt, &reason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return rbac.Override{}, err
	}
	var err error
	if o.Resource, err = rbac.ParseResource(resource); err != nil {
		return rbac.Override{}, fmt.Errorf("stored override %s: %w", o.ID, err)
	}
	if o.Action, err = rbac.ParseAction(action); err != nil {
		return rbac.Override{}, fmt.Errorf("stored override %s: %w", o.ID, err)
	}
	if o.Effect, err = rbac.ParseEffect(effect); err != nil {
		return rbac.Override{}, fmt.Errorf("stored override %s: %w", o.ID, err)
	}
	if scope != nil {
		if o.Scope, err = rbac.ParseScope(*scope); err != nil {
			return rbac.Override{}, fmt.Errorf("stored override %s: %w", o.ID, err)
		}
	}
	if reason != nil {
		o.Reason = *reason
	}
	return o, nil
}
