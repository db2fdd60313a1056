package rbac_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ecolix/ecolix/internal/rbac"
)

type stubDirectory struct {
	principals map[int64]rbac.Principal
	err        error
	calls      atomic.Int32
}

func (s *stubDirectory) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	s.calls.Add(1)
	if s.err != nil {
		return rbac.Principal{}, s.err
	}
	p, ok := s.principals[id]
	if !ok {
		return rbac.Principal{}, rbac.ErrUserNotFound
	}
	return p, nil
}

type stubOverrides struct {
	rows  []rbac.Override
	err   error
	calls atomic.Int32
}

func (s *stubOverrides) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func fixedClock() time.Time { return evalAt }

func newTestService(t *testing.T, dir *stubDirectory, ovr *stubOverrides, failClosed bool) *rbac.Service {
	t.Helper()
	metrics := rbac.NewMetrics(prometheus.NewRegistry())
	builder := rbac.NewContextBuilder(dir, ovr).WithClock(fixedClock)
	return rbac.NewService(builder, nil, rbac.ServiceConfig{FailClosed: failClosed, MaxBatch: 5, Metrics: metrics})
}

func staff() *stubDirectory {
	return &stubDirectory{principals: map[int64]rbac.Principal{
		1: {ID: 1, Role: rbac.RoleProprietaire, Active: true},
		3: {ID: 3, Role: rbac.RoleEnseignant, Active: true, ClassIDs: []int64{11}},
		7: {ID: 7, Role: rbac.RoleComptable, Active: true},
		8: {ID: 8, Role: rbac.RoleCaissier, Active: false},
	}}
}

func TestBuildRejectsEmptyPrincipal(t *testing.T) {
	dir := staff()
	builder := rbac.NewContextBuilder(dir, &stubOverrides{})
	_, err := builder.Build(context.Background(), 0)
	require.True(t, errors.Is(err, rbac.ErrUnauthenticated))
	require.Zero(t, dir.calls.Load())
}

func TestBuildSnapshotsOverridesOnce(t *testing.T) {
	dir := staff()
	ovr := &stubOverrides{rows: []rbac.Override{
		{ID: "o1", UserID: 7, Resource: rbac.ResourceSafeExpense, Action: rbac.ActionDelete, Effect: rbac.EffectGrant, Scope: rbac.ScopeAll},
	}}
	svc := newTestService(t, dir, ovr, false)

	decisions, err := svc.CheckBatch(context.Background(), 7, []rbac.Check{
		{Resource: rbac.ResourceSafeExpense, Action: rbac.ActionDelete},
		{Resource: rbac.ResourceSafeExpense, Action: rbac.ActionView},
		{Resource: rbac.ResourceGrades, Action: rbac.ActionView},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	require.True(t, decisions[0].Granted)
	require.Equal(t, rbac.SourceOverride, decisions[0].Source)
	require.True(t, decisions[1].Granted)
	require.False(t, decisions[2].Granted)
	require.EqualValues(t, 1, dir.calls.Load())
	require.EqualValues(t, 1, ovr.calls.Load())
}

func TestBuildUnknownOrInactiveUser(t *testing.T) {
	svc := newTestService(t, staff(), &stubOverrides{}, false)

	_, err := svc.Check(context.Background(), 99, rbac.Check{Resource: rbac.ResourceStudents, Action: rbac.ActionView})
	require.True(t, errors.Is(err, rbac.ErrUserNotFound))

	_, err = svc.Check(context.Background(), 8, rbac.Check{Resource: rbac.ResourcePayments, Action: rbac.ActionView})
	require.True(t, errors.Is(err, rbac.ErrUserNotFound))
}

func TestStoreFailureSurfaces(t *testing.T) {
	ovr := &stubOverrides{err: errors.New("connection refused")}
	svc := newTestService(t, staff(), ovr, false)

	_, err := svc.Check(context.Background(), 7, rbac.Check{Resource: rbac.ResourcePayments, Action: rbac.ActionView})
	require.True(t, errors.Is(err, rbac.ErrStoreFailure))
	require.False(t, errors.Is(err, rbac.ErrUserNotFound))
}

func TestFailClosedTurnsStoreFailureIntoDenial(t *testing.T) {
	dir := staff()
	dir.err = errors.New("timeout")
	svc := newTestService(t, dir, &stubOverrides{}, true)

	decisions, err := svc.CheckBatch(context.Background(), 1, []rbac.Check{
		{Resource: rbac.ResourcePayments, Action: rbac.ActionView},
		{Resource: rbac.ResourceGrades, Action: rbac.ActionView},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	for _, d := range decisions {
		require.False(t, d.Granted)
		require.Equal(t, rbac.SourceUnavailable, d.Source)
		require.Equal(t, "authorization unavailable", d.Reason)
	}
}

func TestBatchMatchesSingleChecks(t *testing.T) {
	svc := newTestService(t, staff(), &stubOverrides{}, false)
	checks := []rbac.Check{
		{Resource: rbac.ResourceGrades, Action: rbac.ActionCreate},
		{Resource: rbac.ResourceBankTransfers, Action: rbac.ActionView},
		{Resource: rbac.ResourceStudents, Action: rbac.ActionView},
		{Resource: rbac.ResourceUsers, Action: rbac.ActionView},
	}
	batch, err := svc.CheckBatch(context.Background(), 3, checks)
	require.NoError(t, err)
	for i, c := range checks {
		single, err := svc.Check(context.Background(), 3, c)
		require.NoError(t, err)
		require.Equal(t, single, batch[i], "check %d", i)
	}
}

func TestBatchValidation(t *testing.T) {
	dir := staff()
	svc := newTestService(t, dir, &stubOverrides{}, false)

	_, err := svc.CheckBatch(context.Background(), 1, nil)
	require.True(t, errors.Is(err, rbac.ErrInvalidRequest))

	tooMany := make([]rbac.Check, 6)
	for i := range tooMany {
		tooMany[i] = rbac.Check{Resource: rbac.ResourceStudents, Action: rbac.ActionView}
	}
	_, err = svc.CheckBatch(context.Background(), 1, tooMany)
	require.True(t, errors.Is(err, rbac.ErrInvalidRequest))

	_, err = svc.CheckBatch(context.Background(), 1, []rbac.Check{
		{Resource: rbac.ResourceStudents, Action: rbac.ActionView},
		{Resource: rbac.ResourceTreasury, Action: rbac.ActionDelete},
	})
	require.True(t, errors.Is(err, rbac.ErrInvalidRequest))
	require.ErrorContains(t, err, "check 1")
	require.Zero(t, dir.calls.Load(), "invalid batches never reach the directory")
}

func TestMetricsCountDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := rbac.NewMetrics(reg)
	builder := rbac.NewContextBuilder(staff(), &stubOverrides{}).WithClock(fixedClock)
	svc := rbac.NewService(builder, nil, rbac.ServiceConfig{Metrics: metrics})

	_, err := svc.Check(context.Background(), 3, rbac.Check{Resource: rbac.ResourceBankTransfers, Action: rbac.ActionView})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "ecolix_authz_decisions_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
