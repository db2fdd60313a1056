package rbac_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ecolix/ecolix/internal/rbac"
)

var evalAt = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func principal(id int64, role rbac.Role) rbac.Principal {
	return rbac.Principal{ID: id, Role: role, Active: true}
}

func TestComptableCannotDeleteSafeExpense(t *testing.T) {
	ev := rbac.NewEvaluator(nil)
	pc := rbac.NewPermissionContext(principal(7, rbac.RoleComptable), evalAt, nil)

	d, err := ev.Evaluate(pc, rbac.ResourceSafeExpense, rbac.ActionDelete)
	require.NoError(t, err)
	require.False(t, d.Granted)
	require.Equal(t, rbac.SourceDefault, d.Source)
	require.Equal(t, "no default grant for safe_expense:delete", d.Reason)

	d, err = ev.Evaluate(pc, rbac.ResourceSafeExpense, rbac.ActionView)
	require.NoError(t, err)
	require.True(t, d.Granted)
	require.Equal(t, rbac.ScopeAll, d.Scope)
}

func TestTeacherCannotSeeBankTransfers(t *testing.T) {
	ev := rbac.NewEvaluator(nil)
	pc := rbac.NewPermissionContext(principal(3, rbac.RoleEnseignant), evalAt, nil)

	d, err := ev.Evaluate(pc, rbac.ResourceBankTransfers, rbac.ActionView)
	require.NoError(t, err)
	require.False(t, d.Granted)

	d, err = ev.Evaluate(pc, rbac.ResourceGrades, rbac.ActionCreate)
	require.NoError(t, err)
	require.True(t, d.Granted)
	require.Equal(t, rbac.ScopeOwnClasses, d.Scope)
}

func TestOwnerSeesBothSides(t *testing.T) {
	ev := rbac.NewEvaluator(nil)
	pc := rbac.NewPermissionContext(principal(1, rbac.RoleProprietaire), evalAt, nil)
	for _, check := range []rbac.Check{
		{Resource: rbac.ResourceGrades, Action: rbac.ActionApprove},
		{Resource: rbac.ResourceTreasury, Action: rbac.ActionExport},
		{Resource: rbac.ResourceAuditLogs, Action: rbac.ActionView},
	} {
		d, err := ev.Evaluate(pc, check.Resource, check.Action)
		require.NoError(t, err)
		require.Truef(t, d.Granted, "%s", check)
		require.Equal(t, rbac.ScopeAll, d.Scope)
	}
}

func TestOverridePrecedence(t *testing.T) {
	ev := rbac.NewEvaluator(nil)

	t.Run("revoke beats default grant", func(t *testing.T) {
		pc := rbac.NewPermissionContext(principal(5, rbac.RoleSecretaire), evalAt, []rbac.Override{
			{ID: "a", UserID: 5, Resource: rbac.ResourceStudents, Action: rbac.ActionExport, Effect: rbac.EffectRevoke},
		})
		d, err := ev.Evaluate(pc, rbac.ResourceStudents, rbac.ActionExport)
		require.NoError(t, err)
		require.False(t, d.Granted)
		require.Equal(t, rbac.SourceOverride, d.Source)
		require.Equal(t, "revoked by override for students:export", d.Reason)
	})

	t.Run("grant beats missing default", func(t *testing.T) {
		pc := rbac.NewPermissionContext(principal(5, rbac.RoleSecretaire), evalAt, []rbac.Override{
			{ID: "b", UserID: 5, Resource: rbac.ResourceGrades, Action: rbac.ActionView, Effect: rbac.EffectGrant, Scope: rbac.ScopeOwnLevel},
		})
		d, err := ev.Evaluate(pc, rbac.ResourceGrades, rbac.ActionView)
		require.NoError(t, err)
		require.True(t, d.Granted)
		require.Equal(t, rbac.ScopeOwnLevel, d.Scope)
	})

	t.Run("grant without scope is not widened", func(t *testing.T) {
		pc := rbac.NewPermissionContext(principal(5, rbac.RoleCaissier), evalAt, []rbac.Override{
			{ID: "c", UserID: 5, Resource: rbac.ResourceRefunds, Action: rbac.ActionCreate, Effect: rbac.EffectGrant},
		})
		d, err := ev.Evaluate(pc, rbac.ResourceRefunds, rbac.ActionCreate)
		require.NoError(t, err)
		require.False(t, d.Granted)
		require.Equal(t, rbac.SourceOverride, d.Source)
		require.Equal(t, rbac.ScopeNone, d.Scope)
		require.Equal(t, "override for refunds:create grants no scope", d.Reason)
	})

	t.Run("revoke applies to cross roles", func(t *testing.T) {
		pc := rbac.NewPermissionContext(principal(1, rbac.RoleAdminSysteme), evalAt, []rbac.Override{
			{ID: "d", UserID: 1, Resource: rbac.ResourcePayroll, Action: rbac.ActionApprove, Effect: rbac.EffectRevoke},
		})
		d, err := ev.Evaluate(pc, rbac.ResourcePayroll, rbac.ActionApprove)
		require.NoError(t, err)
		require.False(t, d.Granted)
	})
}

func TestExpiredOverrideFallsBackToDefault(t *testing.T) {
	ev := rbac.NewEvaluator(nil)
	expired := evalAt.Add(-time.Minute)
	boundary := evalAt
	pc := rbac.NewPermissionContext(principal(7, rbac.RoleComptable), evalAt, []rbac.Override{
		{ID: "x", UserID: 7, Resource: rbac.ResourceSafeExpense, Action: rbac.ActionDelete, Effect: rbac.EffectGrant, ExpiresAt: &expired},
		{ID: "y", UserID: 7, Resource: rbac.ResourcePayments, Action: rbac.ActionView, Effect: rbac.EffectRevoke, ExpiresAt: &boundary},
	})

	d, err := ev.Evaluate(pc, rbac.ResourceSafeExpense, rbac.ActionDelete)
	require.NoError(t, err)
	require.False(t, d.Granted)
	require.Equal(t, rbac.SourceDefault, d.Source)

	// an override expiring exactly now is no longer active
	d, err = ev.Evaluate(pc, rbac.ResourcePayments, rbac.ActionView)
	require.NoError(t, err)
	require.True(t, d.Granted)
	require.Empty(t, pc.Overrides())
}

func TestMostRecentOverrideWins(t *testing.T) {
	older := evalAt.Add(-2 * time.Hour)
	newer := evalAt.Add(-time.Hour)
	overrides := []rbac.Override{
		{ID: "new", UserID: 9, Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectRevoke, UpdatedAt: newer},
		{ID: "old", UserID: 9, Resource: rbac.ResourceFees, Action: rbac.ActionView, Effect: rbac.EffectGrant, UpdatedAt: older},
		{ID: "other-user", UserID: 10, Resource: rbac.ResourceFees, Action: rbac.ActionUpdate, Effect: rbac.EffectGrant, UpdatedAt: newer},
	}
	pc := rbac.NewPermissionContext(principal(9, rbac.RoleCaissier), evalAt, overrides)

	o, ok := pc.Override(rbac.ResourceFees, rbac.ActionView)
	require.True(t, ok)
	require.Equal(t, "new", o.ID)
	require.Len(t, pc.Overrides(), 1)

	d, err := rbac.NewEvaluator(nil).Evaluate(pc, rbac.ResourceFees, rbac.ActionUpdate)
	require.NoError(t, err)
	require.False(t, d.Granted, "overrides of other users are ignored")
}

func TestEvaluateIsDeterministic(t *testing.T) {
	ev := rbac.NewEvaluator(nil)
	pc := rbac.NewPermissionContext(principal(4, rbac.RoleDirecteurAcademique), evalAt, nil)
	first, err := ev.Evaluate(pc, rbac.ResourceStudents, rbac.ActionUpdate)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := ev.Evaluate(pc, rbac.ResourceStudents, rbac.ActionUpdate)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestEvaluateRejectsInvalidPairs(t *testing.T) {
	ev := rbac.NewEvaluator(nil)
	pc := rbac.NewPermissionContext(principal(1, rbac.RoleProprietaire), evalAt, nil)

	_, err := ev.Evaluate(pc, rbac.ResourceUnknown, rbac.ActionView)
	require.True(t, errors.Is(err, rbac.ErrInvalidRequest))
	_, err = ev.Evaluate(pc, rbac.ResourceStudents, rbac.ActionUnknown)
	require.True(t, errors.Is(err, rbac.ErrInvalidRequest))
	_, err = ev.Evaluate(pc, rbac.ResourceTreasury, rbac.ActionDelete)
	require.True(t, errors.Is(err, rbac.ErrInvalidRequest))
}

func TestScopeFilter(t *testing.T) {
	p := rbac.Principal{ID: 3, Role: rbac.RoleEnseignant, Active: true, SchoolLevel: "college", ClassIDs: []int64{11, 12}, ChildIDs: []int64{40}}
	pc := rbac.NewPermissionContext(p, evalAt, nil)

	f := rbac.NewScopeFilter(pc, rbac.Decision{Granted: true, Scope: rbac.ScopeOwnClasses})
	require.True(t, f.Allows(rbac.Target{ClassID: 12}))
	require.False(t, f.Allows(rbac.Target{ClassID: 13}))

	f = rbac.NewScopeFilter(pc, rbac.Decision{Granted: true, Scope: rbac.ScopeOwnLevel})
	require.True(t, f.Allows(rbac.Target{SchoolLevel: "college"}))
	require.False(t, f.Allows(rbac.Target{SchoolLevel: "lycee"}))

	f = rbac.NewScopeFilter(pc, rbac.Decision{Granted: true, Scope: rbac.ScopeOwnChildren})
	require.True(t, f.Allows(rbac.Target{StudentID: 40}))
	require.False(t, f.Allows(rbac.Target{StudentID: 41}))

	f = rbac.NewScopeFilter(pc, rbac.Decision{Granted: false, Scope: rbac.ScopeAll})
	require.False(t, f.Allows(rbac.Target{ClassID: 12}))
}
