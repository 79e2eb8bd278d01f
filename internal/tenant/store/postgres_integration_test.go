//go:build integration

package store_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"veritrail/internal/actor"
	"veritrail/internal/tenant"
	"veritrail/internal/tenant/secrets"
	"veritrail/internal/tenant/store"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite

	postgres *containers.PostgresContainer
	manager  *tenantscope.Manager
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())

	manager, err := tenantscope.NewManager(s.postgres.Pool, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	s.manager = manager
	s.store = store.NewPostgres()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresStoreSuite) inScope(tenantID domain.TenantID, fn func(ctx context.Context, scope tenantscope.Scope) error) error {
	a := actor.New(tenantID, domain.UserID(uuid.New()),
		[]domain.Role{domain.RoleCAE}, domain.SessionID(uuid.New()))
	return s.manager.WithTenantScope(context.Background(), a, fn)
}

func (s *PostgresStoreSuite) seedTenant(name string) *tenant.Tenant {
	t, err := tenant.New(domain.NewTenantID(), name, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)

	err = s.inScope(t.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		return s.store.Insert(ctx, scope, t)
	})
	s.Require().NoError(err)
	return t
}

func (s *PostgresStoreSuite) TestInsertAndGet() {
	seeded := s.seedTenant("Acme Audit")

	err := s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		got, err := s.store.Get(ctx, scope)
		s.Require().NoError(err)
		s.Equal(seeded.ID, got.ID)
		s.Equal("Acme Audit", got.Name)
		s.Equal(tenant.StatusActive, got.Status)
		return nil
	})
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestInsertRefusesForeignTenant() {
	t, err := tenant.New(domain.NewTenantID(), "Foreign", time.Now())
	s.Require().NoError(err)

	err = s.inScope(domain.NewTenantID(), func(ctx context.Context, scope tenantscope.Scope) error {
		return s.store.Insert(ctx, scope, t)
	})
	s.Require().ErrorIs(err, tenantscope.ErrIsolationViolation)
}

func (s *PostgresStoreSuite) TestGetNotFound() {
	err := s.inScope(domain.NewTenantID(), func(ctx context.Context, scope tenantscope.Scope) error {
		_, err := s.store.Get(ctx, scope)
		return err
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateStatus() {
	seeded := s.seedTenant("Acme Audit")

	err := s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		return s.store.UpdateStatus(ctx, scope, tenant.StatusInactive, time.Now())
	})
	s.Require().NoError(err)

	err = s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		got, err := s.store.Get(ctx, scope)
		s.Require().NoError(err)
		s.Equal(tenant.StatusInactive, got.Status)
		return nil
	})
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newInvitation(tenantID domain.TenantID) *tenant.Invitation {
	secret, err := secrets.Generate()
	s.Require().NoError(err)
	hash, err := secrets.Hash(secret)
	s.Require().NoError(err)

	inv, err := tenant.NewInvitation(tenantID, "lead@acme.example",
		[]domain.Role{domain.RoleAuditor, domain.RoleAuditManager}, hash,
		time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return inv
}

func (s *PostgresStoreSuite) TestInvitationRoundTrip() {
	seeded := s.seedTenant("Acme Audit")
	inv := s.newInvitation(seeded.ID)

	err := s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		if err := s.store.InsertInvitation(ctx, scope, inv); err != nil {
			return err
		}
		got, err := s.store.GetInvitation(ctx, scope, inv.ID)
		s.Require().NoError(err)
		s.Equal(inv.Email, got.Email)
		s.Equal(inv.Roles, got.Roles)
		s.Equal(inv.SecretHash, got.SecretHash)
		s.Nil(got.AcceptedAt)
		return nil
	})
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestInvitationNotVisibleToOtherTenants() {
	seeded := s.seedTenant("Acme Audit")
	other := s.seedTenant("Rival Audit")
	inv := s.newInvitation(seeded.ID)

	err := s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		return s.store.InsertInvitation(ctx, scope, inv)
	})
	s.Require().NoError(err)

	err = s.inScope(other.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		_, err := s.store.GetInvitation(ctx, scope, inv.ID)
		return err
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestMarkInvitationAcceptedOnce() {
	seeded := s.seedTenant("Acme Audit")
	inv := s.newInvitation(seeded.ID)

	err := s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		return s.store.InsertInvitation(ctx, scope, inv)
	})
	s.Require().NoError(err)

	err = s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		return s.store.MarkInvitationAccepted(ctx, scope, inv.ID, time.Now())
	})
	s.Require().NoError(err)

	// A second redeem finds no unaccepted row.
	err = s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		return s.store.MarkInvitationAccepted(ctx, scope, inv.ID, time.Now())
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	err = s.inScope(seeded.ID, func(ctx context.Context, scope tenantscope.Scope) error {
		got, err := s.store.GetInvitation(ctx, scope, inv.ID)
		s.Require().NoError(err)
		s.NotNil(got.AcceptedAt)
		return nil
	})
	s.Require().NoError(err)
}
