package rbac

import (
	"errors"
	"fmt"

	"github.com/ecolix/ecolix/internal/platform/httpx"
)

var (
	// ErrUnauthenticated indicates no valid principal could be resolved.
	ErrUnauthenticated = fmt.Errorf("rbac: unauthenticated: %w", httpx.ErrUnauthorized)
	// ErrInvalidRequest indicates a resource or action outside the closed sets.
	ErrInvalidRequest = fmt.Errorf("rbac: invalid request: %w", httpx.ErrValidation)
	// ErrUserNotFound indicates the principal does not resolve to an active user.
	ErrUserNotFound = errors.New("rbac: user not found")
	// ErrStoreFailure indicates the user directory or override store could not be read.
	ErrStoreFailure = errors.New("rbac: store failure")
)

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}
