package domain

import (
	"strings"

	dErrors "veritrail/pkg/domain-errors"
)

// Role is the closed set of roles the trust core authorizes against.
// Roles arrive from the verified session; multi-role actors are permitted
// and authorization checks are any-of.
type Role string

const (
	RoleAuditor      Role = "AUDITOR"
	RoleAuditee      Role = "AUDITEE"
	RoleAuditManager Role = "AUDIT_MANAGER"
	RoleCAE          Role = "CAE"
)

var knownRoles = map[Role]struct{}{
	RoleAuditor:      {},
	RoleAuditee:      {},
	RoleAuditManager: {},
	RoleCAE:          {},
}

func (r Role) String() string { return string(r) }

// Valid reports whether r is one of the closed role set.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// ParseRole validates an external role string against the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
	}
	return r, nil
}

// ParseRoles validates a non-empty set of external role strings.
func ParseRoles(ss []string) ([]Role, error) {
	if len(ss) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one role is required")
	}
	roles := make([]Role, 0, len(ss))
	for _, s := range ss {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// HasAnyRole reports whether held contains at least one of wanted.
func HasAnyRole(held []Role, wanted ...Role) bool {
	for _, h := range held {
		for _, w := range wanted {
			if h == w {
				return true
			}
		}
	}
	return false
}
