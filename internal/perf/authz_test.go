package perf

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecolix/ecolix/internal/rbac"
)

type directory map[int64]rbac.Principal

func (d directory) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	p, ok := d[id]
	if !ok {
		return rbac.Principal{}, rbac.ErrUserNotFound
	}
	return p, nil
}

type overrideList []rbac.Override

func (o overrideList) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	return o, nil
}

type brokenOverrides struct{}

func (brokenOverrides) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	return nil, errors.New("connection reset")
}

func school() directory {
	return directory{
		3: {ID: 3, TenantID: 1, Role: rbac.RoleEnseignant, SchoolLevel: "primaire", Active: true, ClassIDs: []int64{101}},
		7: {ID: 7, TenantID: 1, Role: rbac.RoleComptable, Active: true},
	}
}

// everyCheck lists every supported resource:action pair.
func everyCheck() []rbac.Check {
	var out []rbac.Check
	for _, res := range rbac.Resources() {
		for _, act := range res.Actions().List() {
			out = append(out, rbac.Check{Resource: res, Action: act})
		}
	}
	return out
}

func TestEvaluatorLatencyTarget(t *testing.T) {
	ev := rbac.NewEvaluator(nil)
	pc := rbac.NewPermissionContext(school()[3], time.Now(), []rbac.Override{
		{ID: "o1", UserID: 3, Resource: rbac.ResourceStudents, Action: rbac.ActionExport, Effect: rbac.EffectGrant, Scope: rbac.ScopeOwnClasses},
	})
	checks := everyCheck()

	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		start := time.Now()
		for _, c := range checks {
			if _, err := ev.Evaluate(pc, c.Resource, c.Action); err != nil {
				t.Fatalf("evaluate %s: %v", c, err)
			}
		}
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 5*time.Millisecond {
		t.Fatalf("full catalog sweep regression: p95=%s threshold=5ms", p95)
	}
}

func TestCheckBatchRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := rbac.NewMetrics(reg)
	svc := rbac.NewService(rbac.NewContextBuilder(school(), overrideList(nil)), nil, rbac.ServiceConfig{Metrics: metrics, MaxBatch: 500})

	checks := everyCheck()
	decisions, err := svc.CheckBatch(context.Background(), 7, checks)
	if err != nil {
		t.Fatalf("check batch: %v", err)
	}
	var granted float64
	for _, d := range decisions {
		if d.Granted {
			granted++
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	got := metricSum(families, "ecolix_authz_decisions_total", map[string]string{"outcome": "granted"})
	if got != granted {
		t.Fatalf("granted decisions recorded %v, want %v", got, granted)
	}
	denied := metricSum(families, "ecolix_authz_decisions_total", map[string]string{"outcome": "denied"})
	if got+denied != float64(len(checks)) {
		t.Fatalf("recorded %v decisions for %d checks", got+denied, len(checks))
	}
}

func TestStoreFailureCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := rbac.NewService(rbac.NewContextBuilder(school(), brokenOverrides{}), nil, rbac.ServiceConfig{
		Metrics:    rbac.NewMetrics(reg),
		FailClosed: true,
	})
	for i := 0; i < 3; i++ {
		d, err := svc.Check(context.Background(), 7, rbac.Check{Resource: rbac.ResourceFees, Action: rbac.ActionView})
		if err != nil {
			t.Fatalf("fail-closed check returned error: %v", err)
		}
		if d.Granted {
			t.Fatal("store failure must not grant")
		}
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if got := metricSum(families, "ecolix_authz_store_failures_total", nil); got != 3 {
		t.Fatalf("store failures = %v, want 3", got)
	}
}

func BenchmarkEvaluate(b *testing.B) {
	ev := rbac.NewEvaluator(nil)
	pc := rbac.NewPermissionContext(school()[3], time.Now(), nil)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ev.Evaluate(pc, rbac.ResourceGrades, rbac.ActionUpdate)
	}
}

func BenchmarkCheckBatch(b *testing.B) {
	svc := rbac.NewService(rbac.NewContextBuilder(school(), overrideList(nil)), nil, rbac.ServiceConfig{MaxBatch: 500})
	checks := everyCheck()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.CheckBatch(ctx, 3, checks); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
