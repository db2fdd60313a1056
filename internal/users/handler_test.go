package users_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/users"
)

type headerResolver struct{}

func (headerResolver) ResolvePrincipal(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.Header.Get("X-Test-User"), 10, 64)
	if err != nil {
		return 0, rbac.ErrUnauthenticated
	}
	return id, nil
}

type noOverrides struct{}

func (noOverrides) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	return nil, nil
}

type fixedOverrides map[int64][]rbac.Override

func (f fixedOverrides) ListActive(ctx context.Context, userID int64, at time.Time) ([]rbac.Override, error) {
	return f[userID], nil
}

type stubOverridesRoutes struct{}

func (stubOverridesRoutes) MountRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", chi.URLParam(r, "userID"))
		w.WriteHeader(http.StatusTeapot)
	})
}

func newRouter(repo *stubRepo) http.Handler {
	return newRouterWith(repo, noOverrides{})
}

func newRouterWith(repo *stubRepo, ovr rbac.OverrideReader) http.Handler {
	svc := users.NewService(repo, nil)
	authz := rbac.NewService(rbac.NewContextBuilder(svc, ovr), nil, rbac.ServiceConfig{})
	guard := rbac.Middleware{Service: authz, Resolver: headerResolver{}}
	r := chi.NewRouter()
	r.Route("/users", users.NewHandler(nil, svc, guard, stubOverridesRoutes{}).MountRoutes)
	return r
}

func send(h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestHandlerListAndGet(t *testing.T) {
	h := newRouter(seed())

	res := send(h, http.MethodGet, "/users?per_page=2", "2", "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var listed struct {
		Users      []users.User `json:"users"`
		Pagination struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
		HasNext bool `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Len(t, listed.Users, 2)
	require.True(t, listed.HasNext)
	require.Equal(t, 5, listed.Pagination.Total)
	require.Equal(t, 3, listed.Pagination.TotalPages)

	res = send(h, http.MethodGet, "/users/3", "2", "")
	require.Equal(t, http.StatusOK, res.Code)
	res = send(h, http.MethodGet, "/users/70", "2", "")
	require.Equal(t, http.StatusNotFound, res.Code)

	// enseignant holds no users:view
	res = send(h, http.MethodGet, "/users", "3", "")
	require.Equal(t, http.StatusForbidden, res.Code)
	res = send(h, http.MethodGet, "/users", "", "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestHandlerAssignRole(t *testing.T) {
	repo := seed()
	h := newRouter(repo)

	res := send(h, http.MethodPut, "/users/3/role", "1", `{"role":"surveillant"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var u users.User
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &u))
	require.Equal(t, "surveillant", u.Role)

	res = send(h, http.MethodPut, "/users/3/role", "1", `{"role":"janitor"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	res = send(h, http.MethodPut, "/users/3/role", "1", `{}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	res = send(h, http.MethodPut, "/users/1/role", "1", `{"role":"directeur"}`)
	require.Equal(t, http.StatusForbidden, res.Code)

	// directeur has users:view but not role_assignment:update
	res = send(h, http.MethodPut, "/users/7/role", "2", `{"role":"caissier"}`)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestHandlerMountsOverrides(t *testing.T) {
	h := newRouter(seed())
	res := send(h, http.MethodGet, "/users/7/overrides", "1", "")
	require.Equal(t, http.StatusTeapot, res.Code)
	require.Equal(t, "7", res.Header().Get("X-User"))
}

func TestHandlerAppliesDecisionScope(t *testing.T) {
	repo := seed()
	repo.accounts[3].principal.SchoolLevel = "primaire"
	repo.accounts[3].user.SchoolLevel = "primaire"
	repo.accounts[7].user.SchoolLevel = "college"
	h := newRouterWith(repo, fixedOverrides{3: {{
		ID: "o1", UserID: 3, Resource: rbac.ResourceUsers, Action: rbac.ActionView,
		Effect: rbac.EffectGrant, Scope: rbac.ScopeOwnLevel,
	}}})

	res := send(h, http.MethodGet, "/users", "3", "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var listed struct {
		Users []users.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Len(t, listed.Users, 1)
	require.Equal(t, int64(3), listed.Users[0].ID)

	res = send(h, http.MethodGet, "/users/7", "3", "")
	require.Equal(t, http.StatusNotFound, res.Code)
}
