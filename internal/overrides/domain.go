package overrides

import (
	"fmt"
	"strings"
	"time"

	"github.com/ecolix/ecolix/internal/rbac"
)

// maxReasonLength bounds the free-text justification stored with an override.
const maxReasonLength = 500

// Input carries the mutable fields of an override. A nil Scope means the
// caller did not ask for one.
type Input struct {
	Resource  rbac.Resource
	Action    rbac.Action
	Effect    rbac.Effect
	Scope     *rbac.Scope
	ExpiresAt *time.Time
	Reason    string
}

// normalize validates the input against now and fills defaults: grants without
// a scope cover everything, revokes carry no scope. A grant may not ask for
// scope none.
func (in Input) normalize(now time.Time) (Input, error) {
	if !in.Resource.Valid() || !in.Resource.Supports(in.Action) {
		return in, fmt.Errorf("%w: %s does not support %s", ErrInvalid, in.Resource, in.Action)
	}
	if !in.Effect.Valid() {
		return in, fmt.Errorf("%w: effect must be grant or revoke", ErrInvalid)
	}
	if in.Scope != nil && !in.Scope.Valid() {
		return in, fmt.Errorf("%w: unknown scope", ErrInvalid)
	}
	scope := rbac.ScopeNone
	if in.Effect == rbac.EffectGrant {
		switch {
		case in.Scope == nil:
			scope = rbac.ScopeAll
		case *in.Scope == rbac.ScopeNone:
			return in, fmt.Errorf("%w: a grant needs a scope other than none", ErrInvalid)
		default:
			scope = *in.Scope
		}
	}
	in.Scope = &scope
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return in, fmt.Errorf("%w: expires_at must be in the future", ErrInvalid)
		}
		utc := in.ExpiresAt.UTC()
		in.ExpiresAt = &utc
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if len(in.Reason) > maxReasonLength {
		return in, fmt.Errorf("%w: reason longer than %d characters", ErrInvalid, maxReasonLength)
	}
	return in, nil
}

// Result reports the stored override and whether the upsert inserted a new row.
type Result struct {
	Override rbac.Override
	Created  bool
}
