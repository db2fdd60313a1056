package rbac

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ecolix/ecolix/internal/shared"
)

// PrincipalResolver extracts the authenticated user id from a request. It returns
// an error wrapping ErrUnauthenticated when the request carries no usable identity.
type PrincipalResolver interface {
	ResolvePrincipal(r *http.Request) (int64, error)
}

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// SessionResolver reads the user id stored in the redis-backed session.
type SessionResolver struct{}

// ResolvePrincipal implements PrincipalResolver.
func (SessionResolver) ResolvePrincipal(r *http.Request) (int64, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, fmt.Errorf("%w: no session", ErrUnauthenticated)
	}
	id := sess.UserID()
	if id <= 0 {
		return 0, fmt.Errorf("%w: anonymous session", ErrUnauthenticated)
	}
	return id, nil
}

// BearerResolver validates an `Authorization: Bearer` access token.
type BearerResolver struct {
	Tokens TokenVerifier
}

// ResolvePrincipal implements PrincipalResolver.
func (b BearerResolver) ResolvePrincipal(r *http.Request) (int64, error) {
	token, ok := BearerToken(r)
	if !ok {
		return 0, fmt.Errorf("%w: no bearer token", ErrUnauthenticated)
	}
	if b.Tokens == nil {
		return 0, fmt.Errorf("%w: bearer tokens disabled", ErrUnauthenticated)
	}
	id, err := b.Tokens.Verify(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return id, nil
}

// ChainResolver prefers a bearer token when one is presented and falls back to
// the session otherwise. An invalid bearer token never falls back.
type ChainResolver struct {
	Bearer  BearerResolver
	Session SessionResolver
}

// ResolvePrincipal implements PrincipalResolver.
func (c ChainResolver) ResolvePrincipal(r *http.Request) (int64, error) {
	if _, ok := BearerToken(r); ok {
		return c.Bearer.ResolvePrincipal(r)
	}
	return c.Session.ResolvePrincipal(r)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	value := r.Header.Get("Authorization")
	if len(value) <= len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(value[len(prefix):])
	return token, token != ""
}
