package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"veritrail/pkg/domain"
)

// Gate answers "may this tenant authenticate" for the auth middleware. It
// runs outside any tenant scope, so it goes through tenant_is_active, a
// definer function that reveals existence and status and nothing else.
type Gate struct {
	pool *pgxpool.Pool
}

func NewGate(pool *pgxpool.Pool) *Gate {
	return &Gate{pool: pool}
}

func (g *Gate) IsActive(ctx context.Context, tenantID domain.TenantID) (bool, error) {
	var active bool
	err := g.pool.QueryRow(ctx, `SELECT tenant_is_active($1)`, uuid.UUID(tenantID)).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("could not check tenant status: %w", err)
	}
	return active, nil
}
