package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline and CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit reached")
		}),
	)
	r.With(h.rbac.Require(rbac.ResourceAuditLogs, rbac.ActionView)).Get("/", h.handleTimeline)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.Require(rbac.ResourceAuditLogs, rbac.ActionExport))
		gr.Use(limiter)
		gr.Get("/export.csv", h.handleExport)
	})
}

// rateLimitKey buckets by principal once the guard has run, by client IP otherwise.
func rateLimitKey(r *http.Request) (string, error) {
	if guarded, ok := rbac.GuardedFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(guarded.Principal.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
