package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors that domain packages wrap so handlers can map failures to
// status codes without knowing the domain.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("service unavailable")
)

var problemStatus = []struct {
	target error
	status int
	title  string
}{
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrDuplicate, http.StatusConflict, "Duplicate"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Service Unavailable"},
}

// RespondError maps err onto an RFC7807 response. Errors outside the sentinel
// set become a 500 with no detail so internals never leak to clients.
func RespondError(w http.ResponseWriter, err error) {
	for _, p := range problemStatus {
		if errors.Is(err, p.target) {
			Problem(w, p.status, p.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
