package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	overrides interface{ MountRoutes(chi.Router) }
	validator *validator.Validate
}

// NewHandler builds Handler instance. overrides, when set, is mounted under
// /{userID}/overrides.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware, overrides interface{ MountRoutes(chi.Router) }) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: guard, overrides: overrides, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceUsers, rbac.ActionView))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.With(h.rbac.Require(rbac.ResourceRoleAssignment, rbac.ActionUpdate)).Put("/{userID}/role", h.assignRole)
	if h.overrides != nil {
		r.Route("/{userID}/overrides", h.overrides.MountRoutes)
	}
}

type listResponse struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
	HasNext    bool              `json:"has_next"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actor, scope, ok := h.viewer(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	tenantID, _ := strconv.ParseInt(q.Get("tenant_id"), 10, 64)
	rows, pg, err := h.service.ListUsers(r.Context(), actor, scope, ListFilter{TenantID: tenantID, Role: q.Get("role")}, page, perPage)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	if rows == nil {
		rows = []User{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Users: rows, Pagination: pg, HasNext: pg.HasNext()})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	actor, scope, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.service.GetUser(r.Context(), actor, scope, id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	u, err := h.service.AssignRole(r.Context(), actor, id, role)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	guarded, ok := rbac.GuardedFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, rbac.ErrUnauthenticated)
		return rbac.Principal{}, false
	}
	return guarded.Principal, true
}

// viewer returns the actor with the scope its users:view decision carries.
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (rbac.Principal, rbac.ScopeFilter, bool) {
	guarded, ok := rbac.GuardedFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, rbac.ErrUnauthenticated)
		return rbac.Principal{}, rbac.ScopeFilter{}, false
	}
	return guarded.Principal, rbac.NewScopeFilter(guarded.Context, guarded.Decision), true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", ErrInvalid))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
