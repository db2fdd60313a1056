package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ecolix/ecolix/internal/platform/httpx"
)

// PermissionsHandler exposes permission checks to clients that render UI
// affordances from them.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	resolver  PrincipalResolver
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, resolver PrincipalResolver) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = SessionResolver{}
	}
	return &PermissionsHandler{logger: logger, service: service, resolver: resolver, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/check-batch", h.checkBatch)
	r.Get("/me", h.me)
}

type checkRequest struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
}

type batchRequest struct {
	Checks []checkRequest `json:"checks" validate:"required,min=1,dive"`
}

type decisionResponse struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Granted  bool   `json:"granted"`
	Scope    string `json:"scope,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Source   string `json:"source"`
}

type meResponse struct {
	UserID      int64              `json:"user_id"`
	Role        Role               `json:"role"`
	Branch      string             `json:"branch"`
	SchoolLevel string             `json:"school_level,omitempty"`
	Grants      []Grant            `json:"grants"`
	Overrides   []overrideResponse `json:"overrides"`
}

type overrideResponse struct {
	Resource  Resource `json:"resource"`
	Action    Action   `json:"action"`
	Effect    Effect   `json:"effect"`
	Scope     Scope    `json:"scope"`
	ExpiresAt *string  `json:"expires_at,omitempty"`
}

func (h *PermissionsHandler) check(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	check, err := ParseCheck(req.Resource, req.Action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	decision, err := h.service.Check(r.Context(), principalID, check)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDecisionResponse(decision))
}

func (h *PermissionsHandler) checkBatch(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	checks := make([]Check, 0, len(req.Checks))
	for i, item := range req.Checks {
		check, err := ParseCheck(item.Resource, item.Action)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("check %d: %w", i, err))
			return
		}
		checks = append(checks, check)
	}
	decisions, err := h.service.CheckBatch(r.Context(), principalID, checks)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]decisionResponse, len(decisions))
	for i, d := range decisions {
		out[i] = toDecisionResponse(d)
	}
	httpx.JSON(w, http.StatusOK, batchResponse{Results: out})
}

type batchResponse struct {
	Results []decisionResponse `json:"results"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	principalID, ok := h.principal(w, r)
	if !ok {
		return
	}
	pc, err := h.service.Context(r.Context(), principalID)
	if err != nil {
		h.fail(w, err)
		return
	}
	grants := h.service.Catalog().Grants(pc.Principal.Role)
	if grants == nil {
		grants = []Grant{}
	}
	overrides := make([]overrideResponse, 0)
	for _, o := range pc.Overrides() {
		item := overrideResponse{Resource: o.Resource, Action: o.Action, Effect: o.Effect, Scope: o.Scope}
		if o.ExpiresAt != nil {
			ts := o.ExpiresAt.UTC().Format(time.RFC3339)
			item.ExpiresAt = &ts
		}
		overrides = append(overrides, item)
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		UserID:      pc.Principal.ID,
		Role:        pc.Principal.Role,
		Branch:      pc.Principal.Role.Branch().String(),
		SchoolLevel: pc.Principal.SchoolLevel,
		Grants:      grants,
		Overrides:   overrides,
	})
}

func (h *PermissionsHandler) principal(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := h.resolver.ResolvePrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func (h *PermissionsHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "no active account for this session")
	case errors.Is(err, ErrStoreFailure):
		if h.service.FailClosed() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", unavailableReason)
			return
		}
		h.logger.Error("permission check", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", unavailableReason)
	default:
		httpx.RespondError(w, err)
	}
}

func toDecisionResponse(d Decision) decisionResponse {
	resp := decisionResponse{
		Resource: d.Resource.String(),
		Action:   d.Action.String(),
		Granted:  d.Granted,
		Reason:   d.Reason,
		Source:   d.Source.String(),
	}
	if d.Granted {
		resp.Scope = d.Scope.String()
	}
	return resp
}
