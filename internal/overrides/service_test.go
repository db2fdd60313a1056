package overrides_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ecolix/ecolix/internal/overrides"
	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/shared"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// memStore mimics the postgres repository: unique (user, resource, action),
// rollback on error.
type memStore struct {
	mu     sync.Mutex
	rows   map[string]rbac.Override
	audits []shared.AuditLog
	keys   map[string]bool
	seq    int
	failOn string
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]rbac.Override{}, keys: map[string]bool{}}
}

func (m *memStore) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rbac.Override
	for _, o := range m.rows {
		if o.UserID == userID && o.ActiveAt(at) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListForUser(ctx context.Context, userID int64) ([]rbac.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rbac.Override
	for _, o := range m.rows {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.rows {
		if o.ExpiresAt != nil && !o.ExpiresAt.After(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, overrides.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, keys, audits := maps.Clone(m.rows), maps.Clone(m.keys), slices.Clone(m.audits)
	if err := fn(ctx, memTx{m}); err != nil {
		m.rows, m.keys, m.audits = rows, keys, audits
		return err
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) Upsert(ctx context.Context, o rbac.Override) (overrides.Result, error) {
	for id, existing := range t.m.rows {
		if existing.UserID == o.UserID && existing.Key() == o.Key() {
			o.ID, o.CreatedAt, o.UpdatedAt = id, existing.CreatedAt, now
			t.m.rows[id] = o
			return overrides.Result{Override: o}, nil
		}
	}
	t.m.seq++
	o.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", t.m.seq)
	o.CreatedAt, o.UpdatedAt = now, now
	t.m.rows[o.ID] = o
	return overrides.Result{Override: o, Created: true}, nil
}

func (t memTx) Delete(ctx context.Context, userID int64, id string) (rbac.Override, error) {
	o, ok := t.m.rows[id]
	if !ok || o.UserID != userID {
		return rbac.Override{}, overrides.ErrNotFound
	}
	delete(t.m.rows, id)
	return o, nil
}

func (t memTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	if t.m.failOn == "audit" {
		return errors.New("audit insert failed")
	}
	t.m.audits = append(t.m.audits, log)
	return nil
}

func (t memTx) ClaimIdempotencyKey(ctx context.Context, key string) error {
	if t.m.keys[key] {
		return overrides.ErrReplayed
	}
	t.m.keys[key] = true
	return nil
}

type directory map[int64]rbac.Principal

func (d directory) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	p, ok := d[id]
	if !ok {
		return rbac.Principal{}, rbac.ErrUserNotFound
	}
	return p, nil
}

func school() directory {
	return directory{
		1:  {ID: 1, TenantID: 10, Role: rbac.RoleAdminSysteme, Active: true},
		2:  {ID: 2, TenantID: 10, Role: rbac.RoleDirecteur, Active: true},
		3:  {ID: 3, TenantID: 10, Role: rbac.RoleEnseignant, Active: true},
		4:  {ID: 4, TenantID: 10, Role: rbac.RoleProprietaire, Active: true},
		7:  {ID: 7, TenantID: 10, Role: rbac.RoleComptable, Active: true},
		70: {ID: 70, TenantID: 20, Role: rbac.RoleComptable, Active: true},
	}
}

func newService(store *memStore) *overrides.Service {
	return overrides.NewService(store, school(), nil).WithClock(clock)
}

func TestComptableSafeExpenseDeleteLifecycle(t *testing.T) {
	store := newMemStore()
	ovr := newService(store)
	dir := school()
	authz := rbac.NewService(rbac.NewContextBuilder(dir, ovr).WithClock(clock), nil, rbac.ServiceConfig{})
	admin := dir[1]
	ctx := context.Background()
	check := rbac.Check{Resource: rbac.ResourceSafeExpense, Action: rbac.ActionDelete}

	d, err := authz.Check(ctx, 7, check)
	require.NoError(t, err)
	require.False(t, d.Granted)

	res, err := ovr.Upsert(ctx, admin, 7, overrides.Input{Resource: check.Resource, Action: check.Action, Effect: rbac.EffectGrant, Reason: "year-end close"}, "")
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, rbac.ScopeAll, res.Override.Scope)

	d, err = authz.Check(ctx, 7, check)
	require.NoError(t, err)
	require.True(t, d.Granted)
	require.Equal(t, rbac.SourceOverride, d.Source)

	require.NoError(t, ovr.Delete(ctx, admin, 7, res.Override.ID))

	d, err = authz.Check(ctx, 7, check)
	require.NoError(t, err)
	require.False(t, d.Granted)

	require.Len(t, store.audits, 2)
	require.Equal(t, "override.upsert", store.audits[0].Action)
	require.Equal(t, "override.delete", store.audits[1].Action)
	require.EqualValues(t, 10, store.audits[0].TenantID)
}

func TestUpsertReplacesExistingKey(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	admin := school()[1]
	ctx := context.Background()
	in := overrides.Input{Resource: rbac.ResourcePayments, Action: rbac.ActionApprove, Effect: rbac.EffectGrant}

	first, err := svc.Upsert(ctx, admin, 7, in, "")
	require.NoError(t, err)
	in.Effect = rbac.EffectRevoke
	level := rbac.ScopeOwnLevel
	in.Scope = &level
	second, err := svc.Upsert(ctx, admin, 7, in, "")
	require.NoError(t, err)

	require.False(t, second.Created)
	require.Equal(t, first.Override.ID, second.Override.ID)
	require.Equal(t, rbac.EffectRevoke, second.Override.Effect)
	require.Equal(t, rbac.ScopeNone, second.Override.Scope, "revokes carry no scope")
	require.Len(t, store.rows, 1)
}

func TestUpsertValidation(t *testing.T) {
	svc := newService(newMemStore())
	admin := school()[1]
	ctx := context.Background()
	past := now.Add(-time.Second)
	exact := now

	cases := []struct {
		name string
		in   overrides.Input
	}{
		{"unsupported pair", overrides.Input{Resource: rbac.ResourceTreasury, Action: rbac.ActionDelete, Effect: rbac.EffectGrant}},
		{"unknown resource", overrides.Input{Action: rbac.ActionView, Effect: rbac.EffectGrant}},
		{"missing effect", overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView}},
		{"expired", overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectGrant, ExpiresAt: &past}},
		{"expires now", overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectGrant, ExpiresAt: &exact}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upsert(ctx, admin, 7, tc.in, "")
			require.ErrorIs(t, err, overrides.ErrInvalid)
			require.ErrorIs(t, err, httpx.ErrValidation)
		})
	}
}

func TestTargetVisibility(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	dir := school()
	ctx := context.Background()
	in := overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectRevoke}

	_, err := svc.Upsert(ctx, dir[2], 70, in, "")
	require.ErrorIs(t, err, overrides.ErrNotFound, "other school is invisible to a directeur")

	_, err = svc.Upsert(ctx, dir[1], 70, in, "")
	require.NoError(t, err, "cross-branch roles reach every school")

	_, err = svc.Upsert(ctx, dir[1], 404, in, "")
	require.ErrorIs(t, err, overrides.ErrNotFound)

	_, err = svc.Upsert(ctx, dir[2], 2, in, "")
	require.ErrorIs(t, err, overrides.ErrSelfOverride)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestDeleteOnlyOwnRows(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	admin := school()[1]
	ctx := context.Background()

	res, err := svc.Upsert(ctx, admin, 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionUpdate, Effect: rbac.EffectGrant}, "")
	require.NoError(t, err)

	err = svc.Delete(ctx, admin, 3, res.Override.ID)
	require.ErrorIs(t, err, overrides.ErrNotFound)
	require.Len(t, store.rows, 1)
}

func TestIdempotencyKeyIsClaimedOnce(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	admin := school()[1]
	ctx := context.Background()
	in := overrides.Input{Resource: rbac.ResourceRefunds, Action: rbac.ActionApprove, Effect: rbac.EffectGrant}

	_, err := svc.Upsert(ctx, admin, 7, in, "req-1")
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, admin, 7, in, "req-1")
	require.ErrorIs(t, err, overrides.ErrReplayed)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	require.Len(t, store.audits, 1)
}

func TestAuditFailureRollsBack(t *testing.T) {
	store := newMemStore()
	store.failOn = "audit"
	svc := newService(store)

	_, err := svc.Upsert(context.Background(), school()[1], 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectRevoke}, "req-2")
	require.Error(t, err)
	require.Empty(t, store.rows)
	require.Empty(t, store.keys)
}

func TestWallCrossingGrantIsAudited(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	_, err := svc.Upsert(context.Background(), school()[1], 3, overrides.Input{Resource: rbac.ResourceBankTransfers, Action: rbac.ActionView, Effect: rbac.EffectGrant}, "")
	require.NoError(t, err)
	require.Len(t, store.audits, 1)
	require.Equal(t, true, store.audits[0].Meta["crosses_wall"])
}

func TestListAndPurge(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	admin := school()[1]
	ctx := context.Background()
	soon := now.Add(time.Hour)

	_, err := svc.Upsert(ctx, admin, 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectRevoke, ExpiresAt: &soon}, "")
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, admin, 7, overrides.Input{Resource: rbac.ResourcePayroll, Action: rbac.ActionApprove, Effect: rbac.EffectGrant}, "")
	require.NoError(t, err)

	later := svc.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	active, err := later.List(ctx, admin, 7, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	all, err := later.List(ctx, admin, 7, true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	n, err := svc.PurgeExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Len(t, store.rows, 1)
}

func scopeOf(s rbac.Scope) *rbac.Scope { return &s }

func TestGrantScopeIsExplicit(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	admin := school()[1]
	ctx := context.Background()

	res, err := svc.Upsert(ctx, admin, 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionUpdate, Effect: rbac.EffectGrant}, "")
	require.NoError(t, err)
	require.Equal(t, rbac.ScopeAll, res.Override.Scope, "absent scope defaults to all")

	res, err = svc.Upsert(ctx, admin, 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectGrant, Scope: scopeOf(rbac.ScopeOwnLevel)}, "")
	require.NoError(t, err)
	require.Equal(t, rbac.ScopeOwnLevel, res.Override.Scope)

	_, err = svc.Upsert(ctx, admin, 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionUpdate, Effect: rbac.EffectGrant, Scope: scopeOf(rbac.ScopeNone)}, "")
	require.ErrorIs(t, err, overrides.ErrInvalid)
	stored, err := svc.List(ctx, admin, 7, false)
	require.NoError(t, err)
	for _, o := range stored {
		if o.Action == rbac.ActionUpdate {
			require.Equal(t, rbac.ScopeAll, o.Scope, "rejected grant leaves the row alone")
		}
	}

	_, err = svc.Upsert(ctx, admin, 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionUpdate, Effect: rbac.EffectGrant, Scope: scopeOf(rbac.Scope(99))}, "")
	require.ErrorIs(t, err, overrides.ErrInvalid)
}

func TestCrossRoleTargetsNeedCrossActor(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	dir := school()
	ctx := context.Background()
	in := overrides.Input{Resource: rbac.ResourcePermissionOverrides, Action: rbac.ActionCreate, Effect: rbac.EffectRevoke}

	_, err := svc.Upsert(ctx, dir[2], 4, in, "")
	require.ErrorIs(t, err, overrides.ErrProtectedTarget)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	_, err = svc.Create(ctx, dir[2], 1, in, "")
	require.ErrorIs(t, err, overrides.ErrProtectedTarget)
	require.Empty(t, store.rows)

	res, err := svc.Upsert(ctx, dir[1], 4, in, "")
	require.NoError(t, err, "cross roles administer each other")

	err = svc.Delete(ctx, dir[2], 4, res.Override.ID)
	require.ErrorIs(t, err, overrides.ErrProtectedTarget)
	require.Len(t, store.rows, 1)
	_, err = svc.List(ctx, dir[2], 4, false)
	require.NoError(t, err, "reading stays open to the guard")
}

func TestCreateRefusesExistingKey(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	admin := school()[1]
	ctx := context.Background()
	in := overrides.Input{Resource: rbac.ResourceRefunds, Action: rbac.ActionApprove, Effect: rbac.EffectGrant}

	first, err := svc.Create(ctx, admin, 7, in, "")
	require.NoError(t, err)
	require.True(t, first.Created)

	in.Effect = rbac.EffectRevoke
	_, err = svc.Create(ctx, admin, 7, in, "create-2")
	require.ErrorIs(t, err, overrides.ErrExists)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	require.Equal(t, rbac.EffectGrant, store.rows[first.Override.ID].Effect)
	require.Len(t, store.audits, 1)
	require.Empty(t, store.keys, "the claim rolls back with the refused insert")
}

func TestIdempotencyKeysArePerActor(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	dir := school()
	ctx := context.Background()

	_, err := svc.Upsert(ctx, dir[1], 7, overrides.Input{Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectRevoke}, "same")
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, dir[4], 7, overrides.Input{Resource: rbac.ResourcePayroll, Action: rbac.ActionView, Effect: rbac.EffectRevoke}, "same")
	require.NoError(t, err, "another actor may reuse the key")
	require.True(t, store.keys["1:same"])
	require.True(t, store.keys["4:same"])

	_, err = svc.Upsert(ctx, dir[4], 7, overrides.Input{Resource: rbac.ResourcePayroll, Action: rbac.ActionView, Effect: rbac.EffectRevoke}, "same")
	require.ErrorIs(t, err, overrides.ErrReplayed)
}
