package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/ecolix/ecolix/internal/platform/httpx"
)

type requirementKind uint8

const (
	requireRoles requirementKind = iota + 1
	requirePermission
)

// Requirement is what a route demands of its caller: a role allow-list or a
// (resource, action) permission.
type Requirement struct {
	kind  requirementKind
	roles []Role
	check Check
}

// AnyRole admits principals holding one of roles.
func AnyRole(roles ...Role) Requirement {
	return Requirement{kind: requireRoles, roles: slices.Clone(roles)}
}

// Permission admits principals the evaluator grants resource:action.
func Permission(resource Resource, action Action) Requirement {
	return Requirement{kind: requirePermission, check: Check{Resource: resource, Action: action}}
}

// DenialKind classifies why a guard refused a request.
type DenialKind uint8

const (
	DenialUnauthenticated DenialKind = iota + 1
	DenialForbidden
	DenialInvalid
	DenialUnavailable
)

// Denial is the structured refusal produced by Guard.
type Denial struct {
	Kind     DenialKind
	Resource Resource
	Action   Action
	Reason   string
	Err      error
}

// Status maps the denial onto an HTTP status code.
func (d *Denial) Status() int {
	switch d.Kind {
	case DenialUnauthenticated:
		return http.StatusUnauthorized
	case DenialInvalid:
		return http.StatusBadRequest
	case DenialUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusForbidden
	}
}

// Guarded is what a successful guard hands to the handler.
type Guarded struct {
	Principal Principal
	Context   PermissionContext
	Decision  Decision
}

type guardedContextKey struct{}

// ContextWithGuarded stores the guard result on ctx.
func ContextWithGuarded(ctx context.Context, g *Guarded) context.Context {
	return context.WithValue(ctx, guardedContextKey{}, g)
}

// GuardedFromContext returns the guard result stored by Require/RequireRoles.
func GuardedFromContext(ctx context.Context) (*Guarded, bool) {
	g, ok := ctx.Value(guardedContextKey{}).(*Guarded)
	return g, ok && g != nil
}

// Middleware wires route guards for HTTP handlers.
type Middleware struct {
	Service  *Service
	Resolver PrincipalResolver
	Logger   *slog.Logger
}

// Guard authenticates the request, builds the permission context and evaluates
// the requirement. Exactly one of the return values is non-nil.
func (m Middleware) Guard(r *http.Request, req Requirement) (*Guarded, *Denial) {
	resolver := m.Resolver
	if resolver == nil {
		resolver = SessionResolver{}
	}
	principalID, err := resolver.ResolvePrincipal(r)
	if err != nil {
		return nil, &Denial{Kind: DenialUnauthenticated, Reason: "authentication required", Err: err}
	}

	pc, err := m.Service.Context(r.Context(), principalID)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			return nil, &Denial{Kind: DenialForbidden, Resource: req.check.Resource, Action: req.check.Action, Reason: "no active account for this session", Err: err}
		case errors.Is(err, ErrStoreFailure) && m.Service.FailClosed():
			return nil, &Denial{Kind: DenialForbidden, Resource: req.check.Resource, Action: req.check.Action, Reason: unavailableReason, Err: err}
		case errors.Is(err, ErrUnauthenticated):
			return nil, &Denial{Kind: DenialUnauthenticated, Reason: "authentication required", Err: err}
		default:
			return nil, &Denial{Kind: DenialUnavailable, Reason: unavailableReason, Err: err}
		}
	}

	switch req.kind {
	case requireRoles:
		if slices.Contains(req.roles, pc.Principal.Role) {
			return &Guarded{Principal: pc.Principal, Context: pc, Decision: Decision{Granted: true, Scope: ScopeAll, Source: SourceRole}}, nil
		}
		return nil, &Denial{Kind: DenialForbidden, Reason: "role not permitted on this route"}
	case requirePermission:
		d, err := m.Service.Evaluate(pc, req.check)
		if err != nil {
			return nil, &Denial{Kind: DenialInvalid, Resource: req.check.Resource, Action: req.check.Action, Reason: "invalid permission requirement", Err: err}
		}
		if !d.Granted {
			return nil, &Denial{Kind: DenialForbidden, Resource: d.Resource, Action: d.Action, Reason: d.Reason}
		}
		return &Guarded{Principal: pc.Principal, Context: pc, Decision: d}, nil
	default:
		return nil, &Denial{Kind: DenialInvalid, Reason: "route has no requirement"}
	}
}

// Require guards a route with a (resource, action) permission.
func (m Middleware) Require(resource Resource, action Action) func(http.Handler) http.Handler {
	return m.handle(Permission(resource, action))
}

// RequireRoles guards a route with a role allow-list.
func (m Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return m.handle(AnyRole(roles...))
}

func (m Middleware) handle(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guarded, denial := m.Guard(r, req)
			if denial != nil {
				m.deny(w, r, denial)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithGuarded(r.Context(), guarded)))
		})
	}
}

type denialBody struct {
	httpx.ProblemDetail
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, d *Denial) {
	if m.Logger != nil {
		attrs := []any{slog.String("path", r.URL.Path), slog.Int("status", d.Status()), slog.String("reason", d.Reason)}
		if d.Err != nil {
			attrs = append(attrs, slog.Any("error", d.Err))
		}
		if d.Kind == DenialUnavailable {
			m.Logger.Error("rbac guard", attrs...)
		} else {
			m.Logger.Info("rbac guard denied", attrs...)
		}
	}
	body := denialBody{ProblemDetail: httpx.ProblemDetail{
		Type:   "about:blank",
		Title:  http.StatusText(d.Status()),
		Status: d.Status(),
		Detail: d.Reason,
	}}
	if d.Resource.Valid() {
		body.Resource = d.Resource.String()
	}
	if d.Action.Valid() {
		body.Action = d.Action.String()
	}
	httpx.ProblemWith(w, d.Status(), body)
}
