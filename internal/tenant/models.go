// Package tenant manages tenant organizations and the invitations that
// bring users into them.
package tenant

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// Status is the lifecycle state of a tenant organization.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// CanTransitionTo allows only the active ↔ inactive flip.
func (s Status) CanTransitionTo(target Status) bool {
	return s.Valid() && target.Valid() && s != target
}

// Tenant is the aggregate root for a customer organization.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - Status transitions: active ↔ inactive only
//   - CreatedAt is immutable after construction
//
// Deactivation is an immediate boundary: the authentication middleware
// rejects tokens for inactive tenants, so no per-user cascade is needed.
// Reactivation restores access without touching user records.
type Tenant struct {
	ID        domain.TenantID `json:"id"`
	Name      string          `json:"name"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// CanDeactivate checks the transition without applying it. Pair with
// ApplyDeactivation inside a scope callback.
func (t *Tenant) CanDeactivate() error {
	if !t.Status.CanTransitionTo(StatusInactive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already inactive")
	}
	return nil
}

func (t *Tenant) ApplyDeactivation(now time.Time) {
	t.Status = StatusInactive
	t.UpdatedAt = now
}

func (t *Tenant) CanReactivate() error {
	if !t.Status.CanTransitionTo(StatusActive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already active")
	}
	return nil
}

func (t *Tenant) ApplyReactivation(now time.Time) {
	t.Status = StatusActive
	t.UpdatedAt = now
}

// New constructs an active tenant, validating the name invariants.
func New(tenantID domain.TenantID, name string, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	return &Tenant{
		ID:        tenantID,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// InvitationTTL is how long an invitation secret stays redeemable.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation grants one user entry into a tenant with a fixed role set.
// The secret is handed out once at creation and stored only as a hash.
type Invitation struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   domain.TenantID `json:"tenant_id"`
	Email      string          `json:"email"`
	Roles      []domain.Role   `json:"roles"`
	SecretHash string          `json:"-"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
	AcceptedAt *time.Time      `json:"accepted_at,omitempty"`
}

func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

func (i *Invitation) Accepted() bool {
	return i.AcceptedAt != nil
}

// NewInvitation validates the email and role set and stamps the expiry.
func NewInvitation(tenantID domain.TenantID, email string, roles []domain.Role, secretHash string, now time.Time) (*Invitation, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email address is required")
	}
	if len(roles) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one role is required")
	}
	for _, r := range roles {
		if !r.Valid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+r.String())
		}
	}
	if secretHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation secret hash cannot be empty")
	}
	return &Invitation{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Email:      email,
		Roles:      roles,
		SecretHash: secretHash,
		ExpiresAt:  now.Add(InvitationTTL),
		CreatedAt:  now,
	}, nil
}
