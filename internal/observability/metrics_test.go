package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ecolix/ecolix/internal/rbac"
)

func TestMetricsHandlerExposesDomainCollectors(t *testing.T) {
	metrics := NewMetrics()
	rbac.NewMetrics(metrics.Registerer())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"ecolix_authz_store_failures_total", "go_goroutines", "ecolix_http_requests_in_flight"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition, got: %s", name, body)
		}
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/users/{userID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/users/7", "/users/8", "/plain"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/users/{userID}", "418")); got != 2 {
		t.Fatalf("expected 2 requests on the user route, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues(http.MethodGet, "/plain", "200")); got != 1 {
		t.Fatalf("expected implicit 200 to be recorded, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.inFlight); got != 0 {
		t.Fatalf("in-flight gauge should settle at zero, got %v", got)
	}
	if n := testutil.CollectAndCount(metrics.latency); n != 2 {
		t.Fatalf("expected 2 latency series, got %d", n)
	}
}
