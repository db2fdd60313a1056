package rbac

import (
	"errors"
	"fmt"
	"sort"
)

// Grant is one row of the default grant table.
type Grant struct {
	Role     Role     `json:"role"`
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
	Scope    Scope    `json:"scope"`
}

type grantKey struct {
	role     Role
	resource Resource
	action   Action
}

// Catalog is the immutable default grant table. It is safe for concurrent use.
type Catalog struct {
	grants map[grantKey]Scope
}

// NewCatalog validates grants and builds a catalog. Cross-branch roles are
// granted ScopeAll on every supported pair and must not appear in grants.
func NewCatalog(grants []Grant) (*Catalog, error) {
	c := &Catalog{grants: make(map[grantKey]Scope, len(grants))}
	var errs []error
	for _, g := range grants {
		if err := validateGrant(g); err != nil {
			errs = append(errs, err)
			continue
		}
		key := grantKey{role: g.Role, resource: g.Resource, action: g.Action}
		if _, dup := c.grants[key]; dup {
			errs = append(errs, fmt.Errorf("rbac: duplicate grant %s %s:%s", g.Role, g.Resource, g.Action))
			continue
		}
		c.grants[key] = g.Scope
	}
	for _, role := range Roles() {
		if !role.CrossesWall() {
			continue
		}
		for _, res := range Resources() {
			for _, act := range res.Actions().List() {
				c.grants[grantKey{role: role, resource: res, action: act}] = ScopeAll
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func validateGrant(g Grant) error {
	switch {
	case !g.Role.Valid():
		return fmt.Errorf("rbac: grant with unknown role %d", g.Role)
	case g.Role.CrossesWall():
		return fmt.Errorf("rbac: %s is granted implicitly and must not be listed", g.Role)
	case !g.Resource.Valid():
		return fmt.Errorf("rbac: grant for %s with unknown resource %d", g.Role, g.Resource)
	case !g.Resource.Supports(g.Action):
		return fmt.Errorf("rbac: %s does not support %s", g.Resource, g.Action)
	case g.Scope == ScopeNone || !g.Scope.Valid():
		return fmt.Errorf("rbac: grant %s %s:%s must carry a scope", g.Role, g.Resource, g.Action)
	case BreachesWall(g.Role, g.Resource):
		return fmt.Errorf("rbac: %s role %s cannot be granted %s resource %s", g.Role.Branch(), g.Role, g.Resource.Branch(), g.Resource)
	}
	return nil
}

// BreachesWall reports whether giving role access to resource would breach the
// academic/financial wall.
func BreachesWall(role Role, resource Resource) bool {
	rb, sb := role.Branch(), resource.Branch()
	return (rb == BranchAcademic && sb == BranchFinancial) || (rb == BranchFinancial && sb == BranchAcademic)
}

// MustCatalog is NewCatalog that panics on invalid input.
func MustCatalog(grants []Grant) *Catalog {
	c, err := NewCatalog(grants)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCatalog = MustCatalog(DefaultGrants())

// DefaultCatalog returns the built-in school grant table.
func DefaultCatalog() *Catalog { return defaultCatalog }

// DefaultScope returns the default scope for the triple; false means denied.
func (c *Catalog) DefaultScope(role Role, resource Resource, action Action) (Scope, bool) {
	if c == nil {
		return ScopeNone, false
	}
	scope, ok := c.grants[grantKey{role: role, resource: resource, action: action}]
	if !ok || scope == ScopeNone {
		return ScopeNone, false
	}
	return scope, true
}

// Grants lists the default grants of role ordered by resource then action.
func (c *Catalog) Grants(role Role) []Grant {
	if c == nil {
		return nil
	}
	out := make([]Grant, 0)
	for key, scope := range c.grants {
		if key.role == role {
			out = append(out, Grant{Role: key.role, Resource: key.resource, Action: key.action, Scope: scope})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// Len reports the number of (role, resource, action) grants.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.grants)
}
