package roles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads role membership from postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type memberCount struct {
	Role  string
	Count int
}

// CountMembers returns active account counts keyed by stored role name.
// tenantID zero counts every school.
func (r *Repository) CountMembers(ctx context.Context, tenantID int64) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*)::int
FROM users
WHERE is_active AND ($1::bigint = 0 OR tenant_id = $1)
GROUP BY role`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("roles: count members: %w", err)
	}
	counts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[memberCount])
	if err != nil {
		return nil, fmt.Errorf("roles: count members: %w", err)
	}
	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.Role] = c.Count
	}
	return out, nil
}
