// Package store persists tenants and invitations. All queries run on the
// scope's transaction and carry explicit tenant predicates alongside the
// row-level policies.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"veritrail/internal/tenant"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

type PostgresStore struct{}

func NewPostgres() *PostgresStore {
	return &PostgresStore{}
}

func (s *PostgresStore) Insert(ctx context.Context, scope tenantscope.Scope, t *tenant.Tenant) error {
	if t.ID != scope.TenantID() {
		return &tenantscope.IsolationViolationError{Table: "tenants"}
	}
	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenants (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(t.ID), t.Name, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, scope tenantscope.Scope) (*tenant.Tenant, error) {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM tenants
		WHERE id = $1`,
		uuid.UUID(scope.TenantID()),
	)

	var t tenant.Tenant
	err = row.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not scan tenant: %w", err)
	}
	if err := scope.AssertOwned("tenants", t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, scope tenantscope.Scope, status tenant.Status, now time.Time) error {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE tenants SET status = $2, updated_at = $3
		WHERE id = $1`,
		uuid.UUID(scope.TenantID()), string(status), now,
	)
	if err != nil {
		return fmt.Errorf("could not update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertInvitation(ctx context.Context, scope tenantscope.Scope, inv *tenant.Invitation) error {
	if inv.TenantID != scope.TenantID() {
		return &tenantscope.IsolationViolationError{Table: "tenant_invitations"}
	}
	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}

	roles := make([]string, len(inv.Roles))
	for i, r := range inv.Roles {
		roles[i] = r.String()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenant_invitations (id, tenant_id, email, roles, secret_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, uuid.UUID(inv.TenantID), inv.Email, roles, inv.SecretHash, inv.ExpiresAt, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not insert invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvitation(ctx context.Context, scope tenantscope.Scope, invitationID uuid.UUID) (*tenant.Invitation, error) {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT id, tenant_id, email, roles, secret_hash, expires_at, created_at, accepted_at
		FROM tenant_invitations
		WHERE id = $1 AND tenant_id = $2`,
		invitationID, uuid.UUID(scope.TenantID()),
	)

	var inv tenant.Invitation
	var roles []string
	err = row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &roles, &inv.SecretHash, &inv.ExpiresAt, &inv.CreatedAt, &inv.AcceptedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not scan invitation: %w", err)
	}

	inv.Roles, err = domain.ParseRoles(roles)
	if err != nil {
		return nil, fmt.Errorf("stored invitation has invalid roles: %w", err)
	}
	if err := scope.AssertOwned("tenant_invitations", inv.TenantID); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PostgresStore) MarkInvitationAccepted(ctx context.Context, scope tenantscope.Scope, invitationID uuid.UUID, now time.Time) error {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE tenant_invitations SET accepted_at = $3
		WHERE id = $1 AND tenant_id = $2 AND accepted_at IS NULL`,
		invitationID, uuid.UUID(scope.TenantID()), now,
	)
	if err != nil {
		return fmt.Errorf("could not mark invitation accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}
