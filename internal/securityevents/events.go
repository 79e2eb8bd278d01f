// Package securityevents ships security-relevant incidents to Kafka for the
// SOC pipeline. Publishing is out-of-band: events are buffered in memory and
// flushed by a worker, so a broker outage never blocks request handling.
package securityevents

import (
	"time"

	"veritrail/pkg/domain"
)

// EventType classifies a security incident.
type EventType string

const (
	// EventIsolationViolation fires when a row from another tenant was
	// observed inside a tenant's scope.
	EventIsolationViolation EventType = "tenant.isolation_violation"

	// EventInvitationSecretRejected fires on a failed invitation redeem.
	EventInvitationSecretRejected EventType = "invitation.secret_rejected"

	// EventTokenRejected fires when an access token fails validation.
	EventTokenRejected EventType = "auth.token_rejected"
)

// Event is the wire payload. It names only the observing tenant, never the
// foreign tenant whose row leaked.
type Event struct {
	Type       EventType        `json:"type"`
	TenantID   domain.TenantID  `json:"tenant_id"`
	UserID     domain.UserID    `json:"user_id,omitempty"`
	SessionID  domain.SessionID `json:"session_id,omitempty"`
	Table      string           `json:"table,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	IPAddress  string           `json:"ip_address,omitempty"`
	UserAgent  string           `json:"user_agent,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
