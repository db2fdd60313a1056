package overrides

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
)

// IdempotencyHeader carries the client supplied key for create requests.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes override administration under /users/{userID}/overrides.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: guard, validator: validator.New()}
}

// MountRoutes registers override routes. The router is expected to carry the
// {userID} URL parameter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.ResourcePermissionOverrides, rbac.ActionView)).Get("/", h.list)
	r.With(h.rbac.Require(rbac.ResourcePermissionOverrides, rbac.ActionCreate)).Post("/", h.create)
	r.With(h.rbac.Require(rbac.ResourcePermissionOverrides, rbac.ActionUpdate)).Put("/", h.upsert)
	r.With(h.rbac.Require(rbac.ResourcePermissionOverrides, rbac.ActionDelete)).Delete("/{overrideID}", h.delete)
}

type overrideRequest struct {
	Resource  string     `json:"resource" validate:"required"`
	Action    string     `json:"action" validate:"required"`
	Effect    string     `json:"effect" validate:"required"`
	Scope     string     `json:"scope"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason" validate:"max=500"`
}

func (req overrideRequest) input() (Input, error) {
	check, err := rbac.ParseCheck(req.Resource, req.Action)
	if err != nil {
		return Input{}, err
	}
	effect, err := rbac.ParseEffect(req.Effect)
	if err != nil {
		return Input{}, err
	}
	var scope *rbac.Scope
	if req.Scope != "" {
		parsed, err := rbac.ParseScope(req.Scope)
		if err != nil {
			return Input{}, err
		}
		scope = &parsed
	}
	return Input{
		Resource:  check.Resource,
		Action:    check.Action,
		Effect:    effect,
		Scope:     scope,
		ExpiresAt: req.ExpiresAt,
		Reason:    req.Reason,
	}, nil
}

type listResponse struct {
	UserID    int64           `json:"user_id"`
	Overrides []rbac.Override `json:"overrides"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, userID, ok := h.params(w, r)
	if !ok {
		return
	}
	includeExpired, _ := strconv.ParseBool(r.URL.Query().Get("include_expired"))
	rows, err := h.service.List(r.Context(), actor, userID, includeExpired)
	if err != nil {
		h.fail(w, "list overrides", err)
		return
	}
	if rows == nil {
		rows = []rbac.Override{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{UserID: userID, Overrides: rows})
}

// create only inserts; an existing override for the key answers 409 so that
// holders of create without update cannot replace it.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "create override", h.service.Create)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "upsert override", h.service.Upsert)
}

type writeFunc func(ctx context.Context, actor rbac.Principal, userID int64, in Input, idempotencyKey string) (Result, error)

func (h *Handler) write(w http.ResponseWriter, r *http.Request, op string, fn writeFunc) {
	actor, userID, ok := h.params(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalid, err))
		return
	}
	in, err := req.input()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := fn(r.Context(), actor, userID, in, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, result.Override)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, userID, ok := h.params(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, userID, chi.URLParam(r, "overrideID")); err != nil {
		h.fail(w, "delete override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (rbac.Principal, int64, bool) {
	guarded, ok := rbac.GuardedFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, rbac.ErrUnauthenticated)
		return rbac.Principal{}, 0, false
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", ErrInvalid))
		return rbac.Principal{}, 0, false
	}
	return guarded.Principal, userID, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
