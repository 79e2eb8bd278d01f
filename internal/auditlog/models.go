// Package auditlog implements the tamper-evident, append-only audit log.
// Every privileged mutation writes exactly one entry; ordering is provided
// by a strictly increasing per-install sequence number assigned by the
// data store, and entries are never updated or deleted by application code.
package auditlog

import (
	"encoding/json"
	"time"

	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// Operation classifies the mutation an entry records.
type Operation string

const (
	OperationCreate  Operation = "CREATE"
	OperationUpdate  Operation = "UPDATE"
	OperationDelete  Operation = "DELETE"
	OperationLockout Operation = "LOCKOUT"
)

// Valid reports whether op is one of the closed operation set.
func (op Operation) Valid() bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete, OperationLockout:
		return true
	}
	return false
}

// Action types use a dotted namespace. Lifecycle transitions record the
// specific edge that fired; observation.status_changed remains for callers
// that have no more specific type.
const (
	ActionObservationCreated            = "observation.created"
	ActionObservationSubmitted          = "observation.submitted"
	ActionObservationApproved           = "observation.approved"
	ActionObservationReturnedToDraft    = "observation.returned_to_draft"
	ActionObservationIssued             = "observation.issued"
	ActionObservationReturnedForRework  = "observation.returned_for_rework"
	ActionObservationResponseRecorded   = "observation.response_recorded"
	ActionObservationComplianceVerified = "observation.compliance_verified"
	ActionObservationClosed             = "observation.closed"
	ActionObservationStatusChanged      = "observation.status_changed"
	ActionObservationRecurrenceRecorded = "observation.recurrence_recorded"
	ActionObservationSeverityEscalated  = "observation.severity_escalated"

	ActionTenantCreated     = "tenant.created"
	ActionTenantDeactivated = "tenant.deactivated"
	ActionTenantReactivated = "tenant.reactivated"
	ActionTenantUserInvited = "tenant.user_invited"

	ActionUserRoleChanged          = "user.role_changed"
	ActionRequirementNotApplicable = "requirement.marked_not_applicable"
	ActionAuthLockoutCleared       = "auth.lockout_cleared"
)

// sensitiveActions is the fixed set of action types that require a
// non-empty justification before any write happens.
var sensitiveActions = map[string]struct{}{
	ActionObservationClosed:        {},
	ActionUserRoleChanged:          {},
	ActionRequirementNotApplicable: {},
	ActionTenantDeactivated:        {},
	ActionAuthLockoutCleared:       {},
}

// IsSensitiveAction reports whether actionType requires a justification.
func IsSensitiveAction(actionType string) bool {
	_, ok := sensitiveActions[actionType]
	return ok
}

// DefaultRetentionYears is the regulatory retention baseline for this
// domain. retention_expires_at is informational only; no component ever
// deletes based on it.
const DefaultRetentionYears = 10

// Entry is one immutable audit fact. The JSON shape is a stable contract
// and must round-trip.
type Entry struct {
	SequenceNumber     uint64           `json:"sequence_number"`
	TenantID           domain.TenantID  `json:"tenant_id"`
	TableName          string           `json:"table_name"`
	RecordID           string           `json:"record_id"`
	Operation          Operation        `json:"operation"`
	ActionType         string           `json:"action_type,omitempty"`
	OldData            json.RawMessage  `json:"old_data,omitempty"`
	NewData            json.RawMessage  `json:"new_data,omitempty"`
	UserID             *domain.UserID   `json:"user_id,omitempty"`
	Justification      string           `json:"justification,omitempty"`
	IPAddress          string           `json:"ip_address,omitempty"`
	SessionID          string           `json:"session_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	RetentionExpiresAt *time.Time       `json:"retention_expires_at,omitempty"`
}

// Descriptor describes the mutation being recorded. The recorder fills in
// actor identity, timestamps, and the sequence number.
type Descriptor struct {
	ActionType    string
	TableName     string
	RecordID      string
	Operation     Operation
	OldData       json.RawMessage
	NewData       json.RawMessage
	Justification string
}

// MissingJustificationError rejects a sensitive action attempted without
// justification. Safe to retry after supplying one.
type MissingJustificationError struct {
	ActionType string
}

func (e *MissingJustificationError) Error() string {
	return "justification is required for sensitive action " + e.ActionType
}

// Validate enforces descriptor invariants before any write.
func (d Descriptor) Validate() error {
	if d.TableName == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "audit descriptor table name is required")
	}
	if d.RecordID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "audit descriptor record id is required")
	}
	if !d.Operation.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "audit descriptor operation is invalid")
	}
	if IsSensitiveAction(d.ActionType) && d.Justification == "" {
		return &MissingJustificationError{ActionType: d.ActionType}
	}
	return nil
}
