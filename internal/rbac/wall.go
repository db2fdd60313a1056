package rbac

import (
	"errors"
	"fmt"
)

// WallViolation describes one catalog entry that breaks the academic/financial separation.
type WallViolation struct {
	Role     Role
	Resource Resource
	Action   Action
	Scope    Scope
}

func (v WallViolation) Error() string {
	if v.Role.CrossesWall() {
		return fmt.Sprintf("rbac: wall: %s must hold %s:%s with scope all, has %s", v.Role, v.Resource, v.Action, v.Scope)
	}
	return fmt.Sprintf("rbac: wall: %s role %s holds %s resource %s:%s", v.Role.Branch(), v.Role, v.Resource.Branch(), v.Resource, v.Action)
}

// VerifyWall iterates the full role × resource × action space and reports every
// violation: an academic role holding a financial resource (or the reverse), or a
// cross-branch role without scope all on a supported pair.
func VerifyWall(c *Catalog) error {
	if c == nil {
		return errors.New("rbac: wall: nil catalog")
	}
	var errs []error
	for _, role := range Roles() {
		for _, res := range Resources() {
			for _, act := range AllActions() {
				scope, granted := c.DefaultScope(role, res, act)
				switch {
				case role.CrossesWall():
					if res.Supports(act) && scope != ScopeAll {
						errs = append(errs, WallViolation{Role: role, Resource: res, Action: act, Scope: scope})
					}
				case granted && BreachesWall(role, res):
					errs = append(errs, WallViolation{Role: role, Resource: res, Action: act, Scope: scope})
				}
			}
		}
	}
	return errors.Join(errs...)
}
