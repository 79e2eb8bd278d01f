// Package service executes observation lifecycle decisions transactionally:
// every transition runs inside one isolation scope and takes the
// observation's row lock, so the status change and its audit entry commit
// or roll back together.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"veritrail/internal/actor"
	"veritrail/internal/auditlog"
	"veritrail/internal/observation"
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

// Store persists observations. Implemented by store.PostgresStore and
// store.MemoryStore.
type Store interface {
	Insert(ctx context.Context, scope tenantscope.Scope, o *observation.Observation) error
	Get(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID) (*observation.Observation, error)
	GetForUpdate(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID) (*observation.Observation, error)
	UpdateStatus(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID, status observation.Status, now time.Time) error
	UpdateSeverity(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID, severity observation.Severity, occurrenceCount int, now time.Time) error
}

// Service is the transactional application surface over the observation
// lifecycle.
type Service struct {
	scopes   Scopes
	store    Store
	recorder Recorder
	logger   *slog.Logger
}

// New constructs the observation service.
func New(scopes Scopes, store Store, recorder Recorder, logger *slog.Logger) (*Service, error) {
	if scopes == nil {
		return nil, fmt.Errorf("scope manager is required")
	}
	if store == nil {
		return nil, fmt.Errorf("observation store is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{scopes: scopes, store: store, recorder: recorder, logger: logger}, nil
}

// CreateInput carries the fields an auditor supplies for a new finding.
type CreateInput struct {
	Title    string
	Severity observation.Severity
}

// snapshot is the audit payload shape for old/new data.
type snapshot struct {
	Status          observation.Status   `json:"status"`
	Severity        observation.Severity `json:"severity"`
	OccurrenceCount int                  `json:"occurrence_count"`
}

func snapshotOf(o *observation.Observation) json.RawMessage {
	raw, _ := json.Marshal(snapshot{Status: o.Status, Severity: o.Severity, OccurrenceCount: o.OccurrenceCount})
	return raw
}

// Create opens a new observation in DRAFT. Only auditors create findings.
func (s *Service) Create(ctx context.Context, a actor.Context, input CreateInput) (*observation.Observation, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "observation title is required")
	}
	if !input.Severity.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "observation severity is required")
	}
	if !a.HasAnyRole(domain.RoleAuditor) {
		return nil, dErrors.New(dErrors.CodeForbidden, "User lacks required role: "+domain.RoleAuditor.String())
	}

	now := requestcontext.Now(ctx).UTC()
	o := &observation.Observation{
		ID:              domain.NewObservationID(),
		TenantID:        a.TenantID,
		Title:           strings.TrimSpace(input.Title),
		Status:          observation.StatusDraft,
		Severity:        input.Severity,
		OccurrenceCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		if err := s.store.Insert(ctx, scope, o); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, scope, auditlog.Descriptor{
			ActionType: auditlog.ActionObservationCreated,
			TableName:  "observations",
			RecordID:   o.ID.String(),
			Operation:  auditlog.OperationCreate,
			NewData:    snapshotOf(o),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Get fetches one observation inside a read scope.
func (s *Service) Get(ctx context.Context, a actor.Context, id domain.ObservationID) (*observation.Observation, error) {
	var o *observation.Observation
	err := s.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		var err error
		o, err = s.store.Get(ctx, scope, id)
		return err
	})
	if err != nil {
		return nil, translateNotFound(err)
	}
	return o, nil
}

// AvailableTransitions returns the action menu for an observation given the
// actor's roles.
func (s *Service) AvailableTransitions(ctx context.Context, a actor.Context, id domain.ObservationID) ([]observation.Transition, error) {
	o, err := s.Get(ctx, a, id)
	if err != nil {
		return nil, err
	}
	return observation.AvailableTransitions(o.Status, a.Roles, o.Severity), nil
}

// Transition moves an observation along one edge of the lifecycle. The
// status read, the policy check, the update, and the audit record all
// happen inside one scope; the row lock taken by the read serializes
// concurrent attempts on the same observation.
func (s *Service) Transition(ctx context.Context, a actor.Context, id domain.ObservationID, target observation.Status, justification string) (*observation.Observation, error) {
	if !target.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown observation status: "+target.String())
	}

	var updated *observation.Observation
	err := s.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		o, err := s.store.GetForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}

		decision := observation.CanTransition(o.Status, target, a.Roles, o.Severity)
		if !decision.Allowed {
			return denialError(decision)
		}

		actionType := observation.ActionTypeFor(o.Status, target)
		if auditlog.IsSensitiveAction(actionType) && justification == "" {
			// Rejected before any write; the caller can retry with one.
			mj := &auditlog.MissingJustificationError{ActionType: actionType}
			return dErrors.Wrap(mj, dErrors.CodeBadRequest, mj.Error())
		}

		oldData := snapshotOf(o)
		now := requestcontext.Now(ctx).UTC()
		if err := s.store.UpdateStatus(ctx, scope, id, target, now); err != nil {
			return err
		}

		o.Status = target
		o.UpdatedAt = now
		updated = o

		_, err = s.recorder.Record(ctx, scope, auditlog.Descriptor{
			ActionType:    actionType,
			TableName:     "observations",
			RecordID:      id.String(),
			Operation:     auditlog.OperationUpdate,
			OldData:       oldData,
			NewData:       snapshotOf(o),
			Justification: justification,
		})
		return err
	})
	if err != nil {
		return nil, translateNotFound(err)
	}
	return updated, nil
}

// RecordRecurrence notes that the same finding recurred, applying the
// severity escalation policy. Closed observations do not recur.
func (s *Service) RecordRecurrence(ctx context.Context, a actor.Context, id domain.ObservationID) (*observation.Observation, error) {
	if !a.HasAnyRole(domain.RoleAuditor, domain.RoleAuditManager) {
		return nil, dErrors.New(dErrors.CodeForbidden,
			"User lacks required role: "+domain.RoleAuditor.String()+" or "+domain.RoleAuditManager.String())
	}

	var updated *observation.Observation
	err := s.scopes.WithTenantScope(ctx, a, func(ctx context.Context, scope tenantscope.Scope) error {
		o, err := s.store.GetForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeConflict, "cannot record a recurrence on a closed observation")
		}

		oldData := snapshotOf(o)
		count := o.OccurrenceCount + 1
		escalated := observation.Escalate(o.Severity, count)

		now := requestcontext.Now(ctx).UTC()
		if err := s.store.UpdateSeverity(ctx, scope, id, escalated, count, now); err != nil {
			return err
		}

		actionType := auditlog.ActionObservationRecurrenceRecorded
		if escalated != o.Severity {
			actionType = auditlog.ActionObservationSeverityEscalated
		}

		o.Severity = escalated
		o.OccurrenceCount = count
		o.UpdatedAt = now
		updated = o

		_, err = s.recorder.Record(ctx, scope, auditlog.Descriptor{
			ActionType: actionType,
			TableName:  "observations",
			RecordID:   id.String(),
			Operation:  auditlog.OperationUpdate,
			OldData:    oldData,
			NewData:    snapshotOf(o),
		})
		return err
	})
	if err != nil {
		return nil, translateNotFound(err)
	}
	return updated, nil
}

// denialError converts a lifecycle denial into a coded error carrying the
// exact caller-facing reason.
func denialError(d observation.Decision) error {
	switch d.Kind {
	case observation.DenialInvalidTransition:
		return dErrors.New(dErrors.CodeConflict, d.Reason)
	case observation.DenialSeverityRequired:
		return dErrors.New(dErrors.CodeInvalidInput, d.Reason)
	default:
		return dErrors.New(dErrors.CodeForbidden, d.Reason)
	}
}

func translateNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "observation not found")
	}
	return err
}
