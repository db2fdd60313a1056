package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context, filter ListFilter, page shared.Pagination) ([]User, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// FindPrincipal satisfies rbac.UserDirectory.
func (s *Service) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	return s.repo.FindPrincipal(ctx, id)
}

// ListUsers returns one page of users visible to actor. Actors outside the
// cross roles only see their own school; scope narrows the page further.
func (s *Service) ListUsers(ctx context.Context, actor rbac.Principal, scope rbac.ScopeFilter, filter ListFilter, page, perPage int) ([]User, shared.Pagination, error) {
	if !actor.Role.CrossesWall() {
		filter.TenantID = actor.TenantID
	}
	if filter.Role != "" {
		role, err := rbac.ParseRole(filter.Role)
		if err != nil {
			return nil, shared.Pagination{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		filter.Role = role.String()
	}
	pg := shared.NewPagination(page, perPage, 0)
	switch scope.Scope {
	case rbac.ScopeAll:
	case rbac.ScopeOwnLevel:
		if scope.SchoolLevel == "" {
			return nil, pg, nil
		}
		filter.SchoolLevel = scope.SchoolLevel
	default:
		// users carry no class or child relation to match against
		return nil, pg, nil
	}
	rows, total, err := s.repo.ListUsers(ctx, filter, pg)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(pg.Page, pg.PerPage, total), nil
}

// GetUser returns one user when actor may see it within scope.
func (s *Service) GetUser(ctx context.Context, actor rbac.Principal, scope rbac.ScopeFilter, id int64) (User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u.TenantID != actor.TenantID && !actor.Role.CrossesWall() {
		return User{}, ErrNotFound
	}
	if !scope.Allows(rbac.Target{SchoolLevel: u.SchoolLevel}) {
		return User{}, ErrNotFound
	}
	return u, nil
}

// AssignRole changes the role of userID. Nobody may change their own role, and
// only cross roles may grant a cross role or demote a holder of one.
func (s *Service) AssignRole(ctx context.Context, actor rbac.Principal, userID int64, role rbac.Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role", ErrInvalid)
	}
	if userID == actor.ID {
		return User{}, fmt.Errorf("%w: cannot change own role", ErrForbidden)
	}
	target, err := s.repo.FindPrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if target.TenantID != actor.TenantID && !actor.Role.CrossesWall() {
		return User{}, ErrNotFound
	}
	if (role.CrossesWall() || target.Role.CrossesWall()) && !actor.Role.CrossesWall() {
		return User{}, fmt.Errorf("%w: %s may not assign %s", ErrForbidden, actor.Role, role)
	}
	if target.Role == role {
		return s.repo.GetUser(ctx, userID)
	}

	var updated User
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.UpdateRole(ctx, userID, role)
		if err != nil {
			return err
		}
		updated = u
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: target.TenantID,
			ActorID:  actor.ID,
			Action:   "user.role_assign",
			Entity:   "users",
			EntityID: fmt.Sprint(userID),
			Meta:     map[string]any{"from": target.Role.String(), "to": role.String()},
			At:       s.now().UTC(),
		})
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("role assigned",
		slog.Int64("actor_id", actor.ID), slog.Int64("user_id", userID),
		slog.String("from", target.Role.String()), slog.String("to", role.String()))
	return updated, nil
}
