package roles

import (
	"context"
	"fmt"

	"github.com/ecolix/ecolix/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	CountMembers(ctx context.Context, tenantID int64) (map[string]int, error)
}

// Service exposes the read-only role catalog.
type Service struct {
	repo    RepositoryPort
	catalog *rbac.Catalog
}

// NewService builds Service instance. A nil catalog means rbac.DefaultCatalog.
func NewService(repo RepositoryPort, catalog *rbac.Catalog) *Service {
	if catalog == nil {
		catalog = rbac.DefaultCatalog()
	}
	return &Service{repo: repo, catalog: catalog}
}

// ListRoles returns every role with its grant count and the number of active
// members in the actor's school, or across schools for cross roles.
func (s *Service) ListRoles(ctx context.Context, actor rbac.Principal) ([]Role, error) {
	tenantID := actor.TenantID
	if actor.Role.CrossesWall() {
		tenantID = 0
	}
	members := map[string]int{}
	if s.repo != nil {
		counts, err := s.repo.CountMembers(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		members = counts
	}
	out := make([]Role, 0, len(rbac.Roles()))
	for _, role := range rbac.Roles() {
		out = append(out, Role{
			Name:        role,
			Branch:      role.Branch(),
			CrossesWall: role.CrossesWall(),
			Grants:      len(s.catalog.Grants(role)),
			Members:     members[role.String()],
		})
	}
	return out, nil
}

// Grants returns the default permissions of the named role.
func (s *Service) Grants(name string) (rbac.Role, []GrantView, error) {
	role, err := rbac.ParseRole(name)
	if err != nil {
		return rbac.RoleUnknown, nil, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	grants := s.catalog.Grants(role)
	out := make([]GrantView, 0, len(grants))
	for _, g := range grants {
		out = append(out, GrantView{Resource: g.Resource, ResourceBranch: g.Resource.Branch(), Action: g.Action, Scope: g.Scope})
	}
	return role, out, nil
}
