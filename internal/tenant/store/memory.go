package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"veritrail/internal/tenant"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// MemoryStore is the in-memory twin of PostgresStore for unit tests.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[domain.TenantID]tenant.Tenant
	invitations map[uuid.UUID]tenant.Invitation
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[domain.TenantID]tenant.Tenant),
		invitations: make(map[uuid.UUID]tenant.Invitation),
	}
}

func (s *MemoryStore) Insert(_ context.Context, scope tenantscope.Scope, t *tenant.Tenant) error {
	if t.ID != scope.TenantID() {
		return &tenantscope.IsolationViolationError{Table: "tenants"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; ok {
		return sentinel.ErrConflict
	}
	s.tenants[t.ID] = *t
	return nil
}

func (s *MemoryStore) Get(_ context.Context, scope tenantscope.Scope) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[scope.TenantID()]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := scope.AssertOwned("tenants", t.ID); err != nil {
		return nil, err
	}
	out := t
	return &out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, scope tenantscope.Scope, status tenant.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[scope.TenantID()]
	if !ok {
		return sentinel.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = now
	s.tenants[scope.TenantID()] = t
	return nil
}

func (s *MemoryStore) InsertInvitation(_ context.Context, scope tenantscope.Scope, inv *tenant.Invitation) error {
	if inv.TenantID != scope.TenantID() {
		return &tenantscope.IsolationViolationError{Table: "tenant_invitations"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invitations[inv.ID]; ok {
		return sentinel.ErrConflict
	}
	s.invitations[inv.ID] = *inv
	return nil
}

func (s *MemoryStore) GetInvitation(_ context.Context, scope tenantscope.Scope, invitationID uuid.UUID) (*tenant.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invitations[invitationID]
	if !ok || inv.TenantID != scope.TenantID() {
		return nil, sentinel.ErrNotFound
	}
	if err := scope.AssertOwned("tenant_invitations", inv.TenantID); err != nil {
		return nil, err
	}
	out := inv
	return &out, nil
}

func (s *MemoryStore) MarkInvitationAccepted(_ context.Context, scope tenantscope.Scope, invitationID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[invitationID]
	if !ok || inv.TenantID != scope.TenantID() || inv.AcceptedAt != nil {
		return sentinel.ErrConflict
	}
	at := now
	inv.AcceptedAt = &at
	s.invitations[invitationID] = inv
	return nil
}
