package service_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"veritrail/internal/actor"
	"veritrail/internal/auditlog"
	"veritrail/internal/tenant"
	"veritrail/internal/tenant/service"
	"veritrail/internal/tenant/store"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/requestcontext"
)

type fakeScopes struct{}

func (fakeScopes) WithTenantScope(ctx context.Context, a actor.Context, fn func(ctx context.Context, s tenantscope.Scope) error) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return fn(ctx, tenantscope.NewDetached(a))
}

type fakeRecorder struct {
	recorded []auditlog.Descriptor
}

func (r *fakeRecorder) Record(_ context.Context, _ tenantscope.Scope, d auditlog.Descriptor) (*auditlog.Entry, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	r.recorded = append(r.recorded, d)
	return &auditlog.Entry{SequenceNumber: uint64(len(r.recorded))}, nil
}

func (r *fakeRecorder) last() auditlog.Descriptor {
	return r.recorded[len(r.recorded)-1]
}

type TenantServiceSuite struct {
	suite.Suite

	svc      *service.Service
	store    *store.MemoryStore
	recorder *fakeRecorder
}

func TestTenantServiceSuite(t *testing.T) {
	suite.Run(t, new(TenantServiceSuite))
}

func (s *TenantServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.recorder = &fakeRecorder{}

	svc, err := service.New(fakeScopes{}, s.store, s.recorder, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *TenantServiceSuite) caeFor(t *tenant.Tenant) actor.Context {
	return actor.New(t.ID, domain.UserID(uuid.New()), []domain.Role{domain.RoleCAE}, domain.SessionID(uuid.New()))
}

func (s *TenantServiceSuite) managerFor(t *tenant.Tenant) actor.Context {
	return actor.New(t.ID, domain.UserID(uuid.New()), []domain.Role{domain.RoleAuditManager}, domain.SessionID(uuid.New()))
}

func (s *TenantServiceSuite) TestProvision() {
	s.Run("creates an active tenant and records an audit entry", func() {
		t, err := s.svc.Provision(context.Background(), "  Acme Corp  ")
		s.Require().NoError(err)

		s.Equal("Acme Corp", t.Name)
		s.Equal(tenant.StatusActive, t.Status)
		s.Equal(auditlog.ActionTenantCreated, s.recorder.last().ActionType)
	})

	s.Run("rejects an empty name", func() {
		_, err := s.svc.Provision(context.Background(), "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *TenantServiceSuite) TestDeactivateReactivate() {
	t, err := s.svc.Provision(context.Background(), "Acme Corp")
	s.Require().NoError(err)
	cae := s.caeFor(t)

	s.Run("requires a justification", func() {
		_, err := s.svc.Deactivate(context.Background(), cae, "")
		var mj *auditlog.MissingJustificationError
		s.ErrorAs(err, &mj)
		s.Equal(auditlog.ActionTenantDeactivated, mj.ActionType)
	})

	s.Run("requires the CAE role", func() {
		_, err := s.svc.Deactivate(context.Background(), s.managerFor(t), "contract lapsed")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("deactivates with justification", func() {
		got, err := s.svc.Deactivate(context.Background(), cae, "contract lapsed")
		s.Require().NoError(err)
		s.Equal(tenant.StatusInactive, got.Status)

		d := s.recorder.last()
		s.Equal(auditlog.ActionTenantDeactivated, d.ActionType)
		s.Equal("contract lapsed", d.Justification)
	})

	s.Run("double deactivation violates the status invariant", func() {
		_, err := s.svc.Deactivate(context.Background(), cae, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("reactivates", func() {
		got, err := s.svc.Reactivate(context.Background(), cae, "contract renewed")
		s.Require().NoError(err)
		s.Equal(tenant.StatusActive, got.Status)
		s.Equal(auditlog.ActionTenantReactivated, s.recorder.last().ActionType)
	})
}

func (s *TenantServiceSuite) TestInviteAndAccept() {
	t, err := s.svc.Provision(context.Background(), "Acme Corp")
	s.Require().NoError(err)
	manager := s.managerFor(t)

	s.Run("invitation round trip", func() {
		inv, secret, err := s.svc.InviteUser(context.Background(), manager, "Auditor@Example.com", []domain.Role{domain.RoleAuditor})
		s.Require().NoError(err)
		s.NotEmpty(secret)
		s.Equal("auditor@example.com", inv.Email)
		s.NotEqual(secret, inv.SecretHash)
		s.Equal(auditlog.ActionTenantUserInvited, s.recorder.last().ActionType)

		got, err := s.svc.AcceptInvitation(context.Background(), t.ID, inv.ID, secret)
		s.Require().NoError(err)
		s.NotNil(got.AcceptedAt)

		_, err = s.svc.AcceptInvitation(context.Background(), t.ID, inv.ID, secret)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("wrong secret is rejected", func() {
		inv, _, err := s.svc.InviteUser(context.Background(), manager, "b@example.com", []domain.Role{domain.RoleAuditee})
		s.Require().NoError(err)

		_, err = s.svc.AcceptInvitation(context.Background(), t.ID, inv.ID, "guess")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("expired invitation is rejected", func() {
		inv, secret, err := s.svc.InviteUser(context.Background(), manager, "c@example.com", []domain.Role{domain.RoleAuditee})
		s.Require().NoError(err)

		future := requestcontext.WithTime(context.Background(), time.Now().Add(tenant.InvitationTTL+time.Hour))
		_, err = s.svc.AcceptInvitation(future, t.ID, inv.ID, secret)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("auditee may not invite", func() {
		auditee := actor.New(t.ID, domain.UserID(uuid.New()), []domain.Role{domain.RoleAuditee}, domain.SessionID(uuid.New()))
		_, _, err := s.svc.InviteUser(context.Background(), auditee, "d@example.com", []domain.Role{domain.RoleAuditee})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("inactive tenant rejects invitations", func() {
		other, err := s.svc.Provision(context.Background(), "Globex")
		s.Require().NoError(err)
		cae := s.caeFor(other)
		_, err = s.svc.Deactivate(context.Background(), cae, "suspended")
		s.Require().NoError(err)

		_, _, err = s.svc.InviteUser(context.Background(), s.managerFor(other), "e@example.com", []domain.Role{domain.RoleAuditor})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
