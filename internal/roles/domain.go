package roles

import (
	"fmt"

	"github.com/ecolix/ecolix/internal/platform/httpx"
	"github.com/ecolix/ecolix/internal/rbac"
)

// Role describes one catalog role and how many accounts hold it.
type Role struct {
	Name        rbac.Role   `json:"name"`
	Branch      rbac.Branch `json:"branch"`
	CrossesWall bool        `json:"crosses_wall"`
	Grants      int         `json:"grants"`
	Members     int         `json:"members"`
}

// GrantView is one default permission of a role.
type GrantView struct {
	Resource       rbac.Resource `json:"resource"`
	ResourceBranch rbac.Branch   `json:"resource_branch"`
	Action         rbac.Action   `json:"action"`
	Scope          rbac.Scope    `json:"scope"`
}

// ErrUnknownRole is returned for role names the catalog does not define.
var ErrUnknownRole = fmt.Errorf("roles: %w", httpx.ErrNotFound)
