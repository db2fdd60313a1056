package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// UserDirectory resolves principals. Implementations return ErrUserNotFound when
// the id does not match a user.
type UserDirectory interface {
	FindPrincipal(ctx context.Context, id int64) (Principal, error)
}

// OverrideReader lists the overrides of one user that are still active at `at`.
type OverrideReader interface {
	ListActive(ctx context.Context, userID int64, at time.Time) ([]Override, error)
}

// ContextBuilder assembles PermissionContexts from the user directory and override store.
type ContextBuilder struct {
	users     UserDirectory
	overrides OverrideReader
	now       func() time.Time
}

// NewContextBuilder constructs a builder.
func NewContextBuilder(users UserDirectory, overrides OverrideReader) *ContextBuilder {
	return &ContextBuilder{users: users, overrides: overrides, now: time.Now}
}

// WithClock replaces the evaluation clock, mainly for tests.
func (b *ContextBuilder) WithClock(now func() time.Time) *ContextBuilder {
	clone := *b
	clone.now = now
	return &clone
}

// Build loads the principal and its active overrides with one read each.
func (b *ContextBuilder) Build(ctx context.Context, principalID int64) (PermissionContext, error) {
	if principalID <= 0 {
		return PermissionContext{}, fmt.Errorf("%w: empty principal id", ErrUnauthenticated)
	}
	at := b.now().UTC()

	var (
		principal Principal
		overrides []Override
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := b.users.FindPrincipal(gctx, principalID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return err
			}
			return storeFailure("find principal", err)
		}
		principal = p
		return nil
	})
	g.Go(func() error {
		if b.overrides == nil {
			return nil
		}
		rows, err := b.overrides.ListActive(gctx, principalID, at)
		if err != nil {
			return storeFailure("list overrides", err)
		}
		overrides = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return PermissionContext{}, err
	}
	if !principal.Active || !principal.Role.Valid() {
		return PermissionContext{}, fmt.Errorf("%w: user %d inactive or without a known role", ErrUserNotFound, principalID)
	}
	return NewPermissionContext(principal, at, overrides), nil
}
