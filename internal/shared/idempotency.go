package shared

import (
	"context"
	"errors"
	"time"
)

// ErrIdempotencyConflict indicates the key was already claimed in its module.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore records client supplied request keys per module.
type IdempotencyStore struct {
	db  DBTX
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// WithTx returns a store claiming keys through tx, so the claim rolls back
// together with the work it guards.
func (s *IdempotencyStore) WithTx(tx DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: tx, now: s.now}
}

// Claim records key under module. A key already present yields
// ErrIdempotencyConflict without aborting an enclosing transaction.
func (s *IdempotencyStore) Claim(ctx context.Context, module, key string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	if module == "" || key == "" {
		return errors.New("idempotency claim requires module and key")
	}
	tag, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (module, key, created_at) VALUES ($1, $2, $3)
ON CONFLICT (module, key) DO NOTHING`, module, key, s.now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Cleanup removes keys older than olderThan and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan).UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
