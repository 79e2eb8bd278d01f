// Package domain holds the shared vocabulary of the trust core: typed
// identifiers, roles, and parsing at trust boundaries.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects
// cross-entity assignment (a TenantID can never be passed where a UserID is
// expected). Parse functions enforce the invariant that IDs arriving from
// outside the process are valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "veritrail/pkg/domain-errors"
)

type (
	// TenantID identifies one audited organization. All business data is
	// partitioned by it.
	TenantID uuid.UUID

	// UserID identifies an authenticated user within a tenant.
	UserID uuid.UUID

	// SessionID identifies the authenticated session an action ran under.
	SessionID uuid.UUID

	// ObservationID identifies a single audit finding.
	ObservationID uuid.UUID
)

func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ObservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id TenantID) String() string      { return uuid.UUID(id).String() }
func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id SessionID) String() string     { return uuid.UUID(id).String() }
func (id ObservationID) String() string { return uuid.UUID(id).String() }

// NewTenantID returns a fresh random tenant ID.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewObservationID returns a fresh random observation ID.
func NewObservationID() ObservationID { return ObservationID(uuid.New()) }

// ParseTenantID parses and validates an external tenant ID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	return TenantID(u), err
}

// ParseUserID parses and validates an external user ID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseSessionID parses and validates an external session ID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

// ParseObservationID parses and validates an external observation ID.
func ParseObservationID(s string) (ObservationID, error) {
	u, err := parseUUID(s, "observation id")
	return ObservationID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be the nil UUID")
	}
	return u, nil
}

// Text marshaling keeps the canonical UUID string form in JSON payloads;
// defined types do not inherit uuid.UUID's methods. Unmarshaling round-trips
// any value marshaling can produce, nil UUID included; the non-nil invariant
// is enforced by the Parse functions at trust boundaries, not here.

func (id TenantID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id ObservationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TenantID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = TenantID(u)
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

func (id *SessionID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = SessionID(u)
	return nil
}

func (id *ObservationID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ObservationID(u)
	return nil
}
