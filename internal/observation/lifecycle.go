package observation

import (
	"fmt"
	"strings"

	"veritrail/pkg/domain"
)

// edge is one legal transition. Roles are any-of: a caller holding several
// roles needs only one match. severityGuarded edges additionally require a
// severity and restrict HIGH/CRITICAL closes to the CAE.
type edge struct {
	from, to        Status
	roles           []domain.Role
	label           string
	actionType      string
	severityGuarded bool
}

// transitionTable is the complete lifecycle. It is data, not code: the
// checks below are a single pass over this table.
var transitionTable = []edge{
	{from: StatusDraft, to: StatusSubmitted, roles: []domain.Role{domain.RoleAuditor},
		label: "Submit for Review", actionType: "observation.submitted"},
	{from: StatusSubmitted, to: StatusReviewed, roles: []domain.Role{domain.RoleAuditManager},
		label: "Approve", actionType: "observation.approved"},
	{from: StatusSubmitted, to: StatusDraft, roles: []domain.Role{domain.RoleAuditManager},
		label: "Return to Draft", actionType: "observation.returned_to_draft"},
	{from: StatusReviewed, to: StatusIssued, roles: []domain.Role{domain.RoleAuditManager},
		label: "Issue", actionType: "observation.issued"},
	{from: StatusReviewed, to: StatusSubmitted, roles: []domain.Role{domain.RoleAuditManager},
		label: "Return for Rework", actionType: "observation.returned_for_rework"},
	{from: StatusIssued, to: StatusResponse, roles: []domain.Role{domain.RoleAuditee},
		label: "Record Response", actionType: "observation.response_recorded"},
	{from: StatusResponse, to: StatusCompliance, roles: []domain.Role{domain.RoleAuditor, domain.RoleAuditManager},
		label: "Verify Compliance", actionType: "observation.compliance_verified"},
	{from: StatusCompliance, to: StatusClosed, roles: []domain.Role{domain.RoleAuditManager, domain.RoleCAE},
		label: "Close", actionType: "observation.closed", severityGuarded: true},
}

// Decision is the outcome of a transition check. When not allowed, Reason
// carries the exact caller-facing rejection and Kind classifies it.
type Decision struct {
	Allowed bool
	Reason  string
	Kind    DenialKind
}

// DenialKind classifies why a transition was rejected.
type DenialKind string

const (
	DenialNone              DenialKind = ""
	DenialInvalidTransition DenialKind = "invalid_transition"
	DenialRoleNotAuthorized DenialKind = "role_not_authorized"
	DenialSeverityRequired  DenialKind = "severity_required"
	DenialSeverityGuard     DenialKind = "severity_guard_failed"
)

func allowed() Decision { return Decision{Allowed: true} }

func denied(kind DenialKind, reason string) Decision {
	return Decision{Allowed: false, Kind: kind, Reason: reason}
}

// CanTransition is a pure function of (current state, target state, actor
// roles, entity severity). Severity may be the zero value when the edge is
// not severity-guarded. It never errors; illegal inputs yield a denial with
// a specific reason.
func CanTransition(from, to Status, roles []domain.Role, severity Severity) Decision {
	e, ok := findEdge(from, to)
	if !ok {
		return denied(DenialInvalidTransition,
			fmt.Sprintf("Invalid transition from %s to %s", from, to))
	}

	if !domain.HasAnyRole(roles, e.roles...) {
		return denied(DenialRoleNotAuthorized,
			"User lacks required role: "+roleList(e.roles))
	}

	if e.severityGuarded {
		if severity == "" {
			return denied(DenialSeverityRequired,
				"Severity is required to close an observation")
		}
		if severity.RequiresCAEClose() && !domain.HasAnyRole(roles, domain.RoleCAE) {
			return denied(DenialSeverityGuard,
				fmt.Sprintf("%s severity requires CAE to close", severity))
		}
	}

	return allowed()
}

// Transition is one edge offered to a caller, for building action menus.
type Transition struct {
	To         Status `json:"to"`
	Label      string `json:"label"`
	ActionType string `json:"action_type"`
}

// AvailableTransitions returns every edge from current that passes
// CanTransition for the given roles and severity. It returns the empty
// list for the terminal state or for roles with no matching edges; it
// never errors.
func AvailableTransitions(current Status, roles []domain.Role, severity Severity) []Transition {
	var available []Transition
	for _, e := range transitionTable {
		if e.from != current {
			continue
		}
		if d := CanTransition(e.from, e.to, roles, severity); d.Allowed {
			available = append(available, Transition{To: e.to, Label: e.label, ActionType: e.actionType})
		}
	}
	return available
}

// ActionTypeFor returns the audit action type recorded for an edge, falling
// back to the generic status-changed type when no edge matches.
func ActionTypeFor(from, to Status) string {
	if e, ok := findEdge(from, to); ok {
		return e.actionType
	}
	return "observation.status_changed"
}

func findEdge(from, to Status) (edge, bool) {
	for _, e := range transitionTable {
		if e.from == from && e.to == to {
			return e, true
		}
	}
	return edge{}, false
}

func roleList(roles []domain.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, " or ")
}
