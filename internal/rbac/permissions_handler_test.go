package rbac_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ecolix/ecolix/internal/rbac"
)

func newPermissionsRouter(t *testing.T, ovr *stubOverrides) http.Handler {
	t.Helper()
	svc := newTestService(t, staff(), ovr, false)
	r := chi.NewRouter()
	r.Route("/permissions", rbac.NewPermissionsHandler(nil, svc, headerResolver{}).MountRoutes)
	return r
}

func post(h http.Handler, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestCheckEndpoint(t *testing.T) {
	h := newPermissionsRouter(t, &stubOverrides{})

	res := post(h, "/permissions/check", "7", `{"resource":"safe_expense","action":"delete"}`)
	require.Equal(t, http.StatusOK, res.Code)
	var d map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &d))
	require.Equal(t, false, d["granted"])
	require.Equal(t, "default", d["source"])
	require.Equal(t, "no default grant for safe_expense:delete", d["reason"])

	res = post(h, "/permissions/check", "3", `{"resource":"Grades","action":"create"}`)
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &d))
	require.Equal(t, true, d["granted"])
	require.Equal(t, "own_classes", d["scope"])
}

func TestCheckEndpointErrors(t *testing.T) {
	h := newPermissionsRouter(t, &stubOverrides{})

	require.Equal(t, http.StatusUnauthorized, post(h, "/permissions/check", "", `{"resource":"students","action":"view"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(h, "/permissions/check", "7", `{"resource":"canteen","action":"view"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(h, "/permissions/check", "7", `{"resource":"treasury","action":"delete"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(h, "/permissions/check", "7", `{"resource":""}`).Code)
	require.Equal(t, http.StatusBadRequest, post(h, "/permissions/check", "7", `not json`).Code)
	require.Equal(t, http.StatusForbidden, post(h, "/permissions/check", "42", `{"resource":"students","action":"view"}`).Code)
}

func TestCheckBatchEndpointKeepsOrder(t *testing.T) {
	h := newPermissionsRouter(t, &stubOverrides{})
	res := post(h, "/permissions/check-batch", "3", `{"checks":[
		{"resource":"grades","action":"create"},
		{"resource":"bank_transfers","action":"view"},
		{"resource":"students","action":"view"}
	]}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var body struct {
		Results []struct {
			Resource string `json:"resource"`
			Action   string `json:"action"`
			Granted  bool   `json:"granted"`
			Reason   string `json:"reason"`
			Scope    string `json:"scope"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.NotContains(t, res.Body.String(), `"decisions"`)
	require.Len(t, body.Results, 3)
	require.Equal(t, "grades", body.Results[0].Resource)
	require.Equal(t, "create", body.Results[0].Action)
	require.True(t, body.Results[0].Granted)
	require.Equal(t, "own_classes", body.Results[0].Scope)
	require.Equal(t, "bank_transfers", body.Results[1].Resource)
	require.False(t, body.Results[1].Granted)
	require.NotEmpty(t, body.Results[1].Reason)
	require.True(t, body.Results[2].Granted)

	res = post(h, "/permissions/check-batch", "3", `{"checks":[]}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	res = post(h, "/permissions/check-batch", "3", `{"checks":[{"resource":"students","action":"view"},{"resource":"treasury","action":"delete"}]}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "check 1")
}

func TestMeEndpoint(t *testing.T) {
	h := newPermissionsRouter(t, &stubOverrides{rows: []rbac.Override{
		{ID: "o1", UserID: 7, Resource: rbac.ResourceSafeExpense, Action: rbac.ActionDelete, Effect: rbac.EffectGrant, Scope: rbac.ScopeAll},
	}})
	req := httptest.NewRequest(http.MethodGet, "/permissions/me", nil)
	req.Header.Set("X-Test-User", "7")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var body struct {
		UserID    int64  `json:"user_id"`
		Role      string `json:"role"`
		Branch    string `json:"branch"`
		Grants    []rbac.Grant
		Overrides []struct {
			Resource string `json:"resource"`
			Effect   string `json:"effect"`
		} `json:"overrides"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.EqualValues(t, 7, body.UserID)
	require.Equal(t, "comptable", body.Role)
	require.Equal(t, "financial", body.Branch)
	require.NotEmpty(t, body.Grants)
	for _, g := range body.Grants {
		require.NotEqual(t, rbac.BranchAcademic, g.Resource.Branch())
	}
	require.Len(t, body.Overrides, 1)
	require.Equal(t, "safe_expense", body.Overrides[0].Resource)
	require.Equal(t, "grant", body.Overrides[0].Effect)
}
