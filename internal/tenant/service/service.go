// Package service orchestrates tenant provisioning, status changes, and
// user invitations. Every mutation runs inside an isolation scope and is
// recorded in the audit log.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veritrail/internal/actor"
	"veritrail/internal/auditlog"
	"veritrail/internal/securityevents"
	"veritrail/internal/tenant"
	"veritrail/internal/tenant/secrets"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

// Scopes opens isolation scopes. Implemented by tenantscope.Manager.
type Scopes interface {
	WithTenantScope(ctx context.Context, a actor.Context, fn func(ctx context.Context, s tenantscope.Scope) error) error
}

// Recorder writes audit entries. Implemented by auditlog.Recorder.
type Recorder interface {
	Record(ctx context.Context, scope tenantscope.Scope, d auditlog.Descriptor) (*auditlog.Entry, error)
}

// Store persists tenants and invitations.
type Store interface {
	Insert(ctx context.Context, scope tenantscope.Scope, t *tenant.Tenant) error
	Get(ctx context.Context, scope tenantscope.Scope) (*tenant.Tenant, error)
	UpdateStatus(ctx context.Context, scope tenantscope.Scope, status tenant.Status, now time.Time) error
	InsertInvitation(ctx context.Context, scope tenantscope.Scope, inv *tenant.Invitation) error
	GetInvitation(ctx context.Context, scope tenantscope.Scope, invitationID uuid.UUID) (*tenant.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, scope tenantscope.Scope, invitationID uuid.UUID, now time.Time) error
}

// SecurityReporter receives failed invitation redeems out of band.
type SecurityReporter interface {
	Report(ctx context.Context, a actor.Context, event securityevents.Event)
}

// Service is the tenant application surface.
type Service struct {
	scopes   Scopes
	store    Store
	recorder Recorder
	logger   *slog.Logger
	security SecurityReporter
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithSecurityReporter attaches the out-of-band security event sink.
func WithSecurityReporter(r SecurityReporter) Option {
	return func(s *Service) { s.security = r }
}

func New(scopes Scopes, store Store, recorder Recorder, logger *slog.Logger, opts ...Option) (*Service, error) {
	if scopes == nil {
		return nil, errors.New("scope manager is required")
	}
	if store == nil {
		return nil, errors.New("tenant store is required")
	}
	if recorder == nil {
		return nil, errors.New("audit recorder is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	s := &Service{scopes: scopes, store: store, recorder: recorder, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Provision creates a new active tenant. It runs under a system actor for
// the new tenant id: the row does not exist until this scope commits, so
// there is no user to act on its behalf yet.
func (s *Service) Provision(ctx context.Context, name string) (*tenant.Tenant, error) {
	tenantID := domain.NewTenantID()
	t, err := tenant.New(tenantID, name, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, err
	}

	err = s.scopes.WithTenantScope(ctx, actor.System(tenantID), func(ctx context.Context, scope tenantscope.Scope) error {
		if err := s.store.Insert(ctx, scope, t); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "tenant already exists")
			}
			return err
		}
		_, err := s.recorder.Record(ctx, scope, auditlog.Descriptor{
			ActionType: auditlog.ActionTenantCreated,
			TableName:  "tenants",
			RecordID:   t.ID.String(),
			Operation:  auditlog.OperationCreate,
			NewData:    tenantSnapshot(t),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tenant provisioned", "tenant_id", t.ID.String(), "name", t.Name)
	return t, nil
}

// Get returns the actor's own tenant.
func (s *Service) Get(ctx context.Context, a actor.Context) (*tenant.Tenant, error) {
	var t *tenant.Tenant
	err := s.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		var err error
		t, err = s.store.Get(ctx, scope)
		return err
	})
	if err != nil {
		return nil, wrapNotFound(err, "tenant not found")
	}
	return t, nil
}

// Deactivate suspends the tenant. CAE only, justification required.
func (s *Service) Deactivate(ctx context.Context, a actor.Context, justification string) (*tenant.Tenant, error) {
	return s.changeStatus(ctx, a, justification, auditlog.ActionTenantDeactivated,
		func(t *tenant.Tenant) error { return t.CanDeactivate() },
		func(t *tenant.Tenant, now time.Time) { t.ApplyDeactivation(now) },
	)
}

// Reactivate restores a suspended tenant. CAE only.
func (s *Service) Reactivate(ctx context.Context, a actor.Context, justification string) (*tenant.Tenant, error) {
	return s.changeStatus(ctx, a, justification, auditlog.ActionTenantReactivated,
		func(t *tenant.Tenant) error { return t.CanReactivate() },
		func(t *tenant.Tenant, now time.Time) { t.ApplyReactivation(now) },
	)
}

func (s *Service) changeStatus(
	ctx context.Context,
	a actor.Context,
	justification string,
	actionType string,
	check func(*tenant.Tenant) error,
	apply func(*tenant.Tenant, time.Time),
) (*tenant.Tenant, error) {
	if !a.HasAnyRole(domain.RoleCAE) {
		return nil, dErrors.New(dErrors.CodeForbidden, "User lacks required role: "+domain.RoleCAE.String())
	}
	if auditlog.IsSensitiveAction(actionType) && justification == "" {
		mj := &auditlog.MissingJustificationError{ActionType: actionType}
		return nil, dErrors.Wrap(mj, dErrors.CodeBadRequest, mj.Error())
	}

	var updated *tenant.Tenant
	err := s.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		t, err := s.store.Get(ctx, scope)
		if err != nil {
			return err
		}
		if err := check(t); err != nil {
			return err
		}

		oldData := tenantSnapshot(t)
		now := requestcontext.Now(ctx).UTC()
		apply(t, now)
		if err := s.store.UpdateStatus(ctx, scope, t.Status, now); err != nil {
			return err
		}
		updated = t

		_, err = s.recorder.Record(ctx, scope, auditlog.Descriptor{
			ActionType:    actionType,
			TableName:     "tenants",
			RecordID:      t.ID.String(),
			Operation:     auditlog.OperationUpdate,
			OldData:       oldData,
			NewData:       tenantSnapshot(t),
			Justification: justification,
		})
		return err
	})
	if err != nil {
		return nil, wrapNotFound(err, "tenant not found")
	}
	return updated, nil
}

// InviteUser creates an invitation and returns it with the one-time secret.
// The secret is never stored or logged; only its hash persists.
func (s *Service) InviteUser(ctx context.Context, a actor.Context, email string, roles []domain.Role) (*tenant.Invitation, string, error) {
	if !a.HasAnyRole(domain.RoleAuditManager, domain.RoleCAE) {
		return nil, "", dErrors.New(dErrors.CodeForbidden,
			"User lacks required role: "+domain.RoleAuditManager.String()+" or "+domain.RoleCAE.String())
	}

	secret, err := secrets.Generate()
	if err != nil {
		return nil, "", err
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return nil, "", err
	}

	inv, err := tenant.NewInvitation(a.TenantID, email, roles, hash, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, "", err
	}

	err = s.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		t, err := s.store.Get(ctx, scope)
		if err != nil {
			return err
		}
		if !t.IsActive() {
			return dErrors.New(dErrors.CodeConflict, "cannot invite users into an inactive tenant")
		}
		if err := s.store.InsertInvitation(ctx, scope, inv); err != nil {
			return err
		}
		_, err = s.recorder.Record(ctx, scope, auditlog.Descriptor{
			ActionType: auditlog.ActionTenantUserInvited,
			TableName:  "tenant_invitations",
			RecordID:   inv.ID.String(),
			Operation:  auditlog.OperationCreate,
			NewData:    invitationSnapshot(inv),
		})
		return err
	})
	if err != nil {
		return nil, "", wrapNotFound(err, "tenant not found")
	}
	return inv, secret, nil
}

// AcceptInvitation redeems an invitation secret. The caller is the system
// actor for the tenant the invitation link names: the invitee has no
// authenticated identity yet.
func (s *Service) AcceptInvitation(ctx context.Context, tenantID domain.TenantID, invitationID uuid.UUID, secret string) (*tenant.Invitation, error) {
	var inv *tenant.Invitation
	err := s.scopes.WithTenantScope(ctx, actor.System(tenantID), func(ctx context.Context, scope tenantscope.Scope) error {
		found, err := s.store.GetInvitation(ctx, scope, invitationID)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx).UTC()
		if found.Accepted() {
			return dErrors.New(dErrors.CodeConflict, "invitation has already been accepted")
		}
		if found.Expired(now) {
			return dErrors.New(dErrors.CodeConflict, "invitation has expired")
		}
		if err := secrets.Verify(secret, found.SecretHash); err != nil {
			if !errors.Is(err, secrets.ErrMismatch) {
				return err
			}
			if s.security != nil {
				s.security.Report(ctx, actor.System(tenantID), securityevents.Event{
					Type:   securityevents.EventInvitationSecretRejected,
					Detail: "invitation " + invitationID.String(),
				})
			}
			return dErrors.New(dErrors.CodeForbidden, "invalid invitation secret")
		}
		if err := s.store.MarkInvitationAccepted(ctx, scope, invitationID, now); err != nil {
			return err
		}
		found.AcceptedAt = &now
		inv = found
		return nil
	})
	if err != nil {
		return nil, wrapNotFound(err, "invitation not found")
	}
	return inv, nil
}

type tenantPayload struct {
	Name   string        `json:"name"`
	Status tenant.Status `json:"status"`
}

func tenantSnapshot(t *tenant.Tenant) json.RawMessage {
	raw, _ := json.Marshal(tenantPayload{Name: t.Name, Status: t.Status})
	return raw
}

type invitationPayload struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func invitationSnapshot(inv *tenant.Invitation) json.RawMessage {
	roles := make([]string, len(inv.Roles))
	for i, r := range inv.Roles {
		roles[i] = r.String()
	}
	raw, _ := json.Marshal(invitationPayload{Email: inv.Email, Roles: roles})
	return raw
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	}
	return err
}
