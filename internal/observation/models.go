// Package observation implements the audit-finding lifecycle: a closed
// seven-state machine with role- and severity-gated transitions, and the
// recurrence-driven severity escalation policy.
package observation

import (
	"strings"
	"time"

	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// Status is the closed set of lifecycle states. DRAFT is initial; CLOSED is
// terminal and not reopenable.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusReviewed   Status = "REVIEWED"
	StatusIssued     Status = "ISSUED"
	StatusResponse   Status = "RESPONSE"
	StatusCompliance Status = "COMPLIANCE"
	StatusClosed     Status = "CLOSED"
)

var knownStatuses = map[Status]struct{}{
	StatusDraft:      {},
	StatusSubmitted:  {},
	StatusReviewed:   {},
	StatusIssued:     {},
	StatusResponse:   {},
	StatusCompliance: {},
	StatusClosed:     {},
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is one of the closed state set.
func (s Status) Valid() bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool { return s == StatusClosed }

// ParseStatus validates an external status string against the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown observation status: "+raw)
	}
	return s, nil
}

// Severity is the ordinal risk classification, LOW < MEDIUM < HIGH <
// CRITICAL. The zero value means "not supplied".
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for escalation and guard checks.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// severityByRank is the inverse of severityRank.
var severityByRank = [...]Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) String() string { return string(s) }

// Valid reports whether s is one of the closed severity set.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// RequiresCAEClose reports whether only a CAE may close a finding of this
// severity.
func (s Severity) RequiresCAEClose() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// ParseSeverity validates an external severity string against the closed set.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown severity: "+raw)
	}
	return s, nil
}

// Observation is one audit finding.
//
// Invariants:
//   - TenantID is set at creation and never changes
//   - Status only moves along the transition table's edges
//   - CLOSED is terminal: no edge leaves it
//   - OccurrenceCount is at least 1 and only increments
type Observation struct {
	ID              domain.ObservationID `json:"id"`
	TenantID        domain.TenantID      `json:"tenant_id"`
	Title           string               `json:"title"`
	Status          Status               `json:"status"`
	Severity        Severity             `json:"severity"`
	OccurrenceCount int                  `json:"occurrence_count"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}
