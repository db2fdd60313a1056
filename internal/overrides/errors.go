package overrides

import (
	"fmt"

	"github.com/ecolix/ecolix/internal/platform/httpx"
)

var (
	// ErrNotFound is returned when the override or its target user is not visible to the actor.
	ErrNotFound = fmt.Errorf("overrides: %w", httpx.ErrNotFound)
	// ErrInvalid wraps input validation failures.
	ErrInvalid = fmt.Errorf("overrides: %w", httpx.ErrValidation)
	// ErrSelfOverride blocks principals from changing their own permissions.
	ErrSelfOverride = fmt.Errorf("overrides: own permissions cannot be overridden: %w", httpx.ErrForbidden)
	// ErrExists is returned by Create when the user already holds an override for the key.
	ErrExists = fmt.Errorf("overrides: override already exists: %w", httpx.ErrDuplicate)
	// ErrProtectedTarget blocks actors outside the cross roles from touching a cross-role holder.
	ErrProtectedTarget = fmt.Errorf("overrides: target holds a cross role: %w", httpx.ErrForbidden)
	// ErrReplayed is returned when an Idempotency-Key has already been processed.
	ErrReplayed = fmt.Errorf("overrides: request already processed: %w", httpx.ErrDuplicate)
)
