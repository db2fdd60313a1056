package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
)

// Handler exposes the role catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: guard}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoles(rbac.RoleProprietaire, rbac.RoleAdminSysteme, rbac.RoleDirecteur, rbac.RoleDirecteurAcademique))
		r.Get("/", h.listRoles)
		r.Get("/{role}/grants", h.grants)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	guarded, ok := rbac.GuardedFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, rbac.ErrUnauthenticated)
		return
	}
	roles, err := h.service.ListRoles(r.Context(), guarded.Principal)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) grants(w http.ResponseWriter, r *http.Request) {
	role, grants, err := h.service.Grants(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "grants": grants})
}
