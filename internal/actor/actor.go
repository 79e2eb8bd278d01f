// Package actor defines the verified actor context driving every
// authorization decision in the trust core.
package actor

import (
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// Context is the immutable (tenant, user, roles, session) tuple supplied by
// the authentication layer for every operation. No component trusts any
// other source for tenant identity: the tenant ID here comes from the
// verified session, never from request parameters.
type Context struct {
	TenantID  domain.TenantID
	UserID    domain.UserID
	Roles     []domain.Role
	SessionID domain.SessionID
	IPAddress string
	UserAgent string

	// Justification is optional free text. The audit recorder requires it
	// for the fixed set of sensitive action types.
	Justification string

	// system marks actors constructed for system events (nil user).
	system bool
}

// New builds an actor context from verified session values.
func New(tenantID domain.TenantID, userID domain.UserID, roles []domain.Role, sessionID domain.SessionID) Context {
	return Context{
		TenantID:  tenantID,
		UserID:    userID,
		Roles:     roles,
		SessionID: sessionID,
	}
}

// System builds an actor context for system-initiated events within a
// tenant. The audit log records a null user for these.
func System(tenantID domain.TenantID) Context {
	return Context{
		TenantID: tenantID,
		Roles:    []domain.Role{domain.RoleAuditManager},
		system:   true,
	}
}

// IsSystem reports whether this is a system actor (no human user).
func (c Context) IsSystem() bool { return c.system }

// HasAnyRole reports whether the actor holds at least one of wanted.
func (c Context) HasAnyRole(wanted ...domain.Role) bool {
	return domain.HasAnyRole(c.Roles, wanted...)
}

// WithJustification returns a copy carrying the supplied justification.
func (c Context) WithJustification(justification string) Context {
	c.Justification = justification
	return c
}

// WithClientMetadata returns a copy carrying client IP and user agent.
func (c Context) WithClientMetadata(ip, userAgent string) Context {
	c.IPAddress = ip
	c.UserAgent = userAgent
	return c
}

// Validate enforces the actor invariants before a scope is opened.
func (c Context) Validate() error {
	if c.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "actor tenant id is required")
	}
	if c.UserID.IsNil() && !c.system {
		return dErrors.New(dErrors.CodeInvalidInput, "actor user id is required")
	}
	if len(c.Roles) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "actor must hold at least one role")
	}
	for _, r := range c.Roles {
		if !r.Valid() {
			return dErrors.New(dErrors.CodeInvalidInput, "actor holds unknown role: "+r.String())
		}
	}
	return nil
}
