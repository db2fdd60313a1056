package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecolix/ecolix/internal/platform/db"
	"github.com/ecolix/ecolix/internal/rbac"
	"github.com/ecolix/ecolix/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool  *pgxpool.Pool
	audit *shared.AuditLogger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, audit: shared.NewAuditLogger(pool)}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	UpdateRole(ctx context.Context, id int64, role rbac.Role) (User, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type txRepo struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, audit: r.audit.WithTx(tx)})
	})
}

// FindPrincipal loads the authorization view of a user: role, tenant, level and
// the class and child relations used for scope narrowing. Inactive users are
// returned with Active unset; unknown ids and unrecognised roles yield
// rbac.ErrUserNotFound.
func (r *Repository) FindPrincipal(ctx context.Context, id int64) (rbac.Principal, error) {
	var (
		p    rbac.Principal
		role string
	)
	err := r.pool.QueryRow(ctx, `SELECT u.id, u.tenant_id, u.role, COALESCE(u.school_level, ''), u.is_active,
	ARRAY(SELECT tc.class_id FROM teacher_classes tc WHERE tc.user_id = u.id ORDER BY tc.class_id),
	ARRAY(SELECT gs.student_id FROM guardian_students gs WHERE gs.user_id = u.id ORDER BY gs.student_id)
FROM users u
WHERE u.id = $1`, id).Scan(&p.ID, &p.TenantID, &role, &p.SchoolLevel, &p.Active, &p.ClassIDs, &p.ChildIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Principal{}, fmt.Errorf("%w: id %d", rbac.ErrUserNotFound, id)
		}
		return rbac.Principal{}, fmt.Errorf("users: find principal: %w", err)
	}
	if p.Role, err = rbac.ParseRole(role); err != nil {
		return rbac.Principal{}, fmt.Errorf("%w: id %d has unrecognised role %q", rbac.ErrUserNotFound, id, role)
	}
	return p, nil
}

const userColumns = `id, tenant_id, email, name, role, COALESCE(school_level, ''), is_active, created_at, updated_at`

// GetUser returns one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// ListUsers returns one page of users and the total matching count.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter, page shared.Pagination) ([]User, int, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+`, COUNT(*) OVER()
FROM users
WHERE ($1::bigint = 0 OR tenant_id = $1)
	AND ($2::text = '' OR role = $2)
	AND ($5::text = '' OR school_level = $5)
ORDER BY id
LIMIT $3 OFFSET $4`, filter.TenantID, filter.Role, page.PerPage, page.Offset(), filter.SchoolLevel)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var (
		out   []User
		total int
	)
	for rows.Next() {
		u, err := scanUser(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateRole replaces the role of a user.
func (t *txRepo) UpdateRole(ctx context.Context, id int64, role rbac.Role) (User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, role.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("users: update role: %w", err)
	}
	return u, nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return t.audit.Record(ctx, log)
}

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var u User
	dest := append([]any{&u.ID, &u.TenantID, &u.Email, &u.Name, &u.Role, &u.SchoolLevel, &u.IsActive, &u.CreatedAt, &u.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return User{}, err
	}
	return u, nil
}
