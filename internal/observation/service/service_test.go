package service_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"veritrail/internal/actor"
	"veritrail/internal/auditlog"
	"veritrail/internal/observation"
	"veritrail/internal/observation/service"
	"veritrail/internal/observation/store"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// fakeScopes runs the callback against a detached scope, no database.
type fakeScopes struct{}

func (fakeScopes) WithTenantScope(ctx context.Context, a actor.Context, fn func(ctx context.Context, s tenantscope.Scope) error) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return fn(ctx, tenantscope.NewDetached(a))
}

// fakeRecorder captures descriptors and enforces the justification rule the
// way the real recorder does.
type fakeRecorder struct {
	recorded []auditlog.Descriptor
}

func (r *fakeRecorder) Record(_ context.Context, _ tenantscope.Scope, d auditlog.Descriptor) (*auditlog.Entry, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	r.recorded = append(r.recorded, d)
	return &auditlog.Entry{SequenceNumber: uint64(len(r.recorded))}, nil
}

func (r *fakeRecorder) last() auditlog.Descriptor {
	return r.recorded[len(r.recorded)-1]
}

type ServiceSuite struct {
	suite.Suite

	svc      *service.Service
	store    *store.MemoryStore
	recorder *fakeRecorder

	tenantID domain.TenantID
	auditor  actor.Context
	manager  actor.Context
	auditee  actor.Context
	cae      actor.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.recorder = &fakeRecorder{}

	svc, err := service.New(fakeScopes{}, s.store, s.recorder, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	s.svc = svc

	s.tenantID = domain.NewTenantID()
	s.auditor = s.actorWith(domain.RoleAuditor)
	s.manager = s.actorWith(domain.RoleAuditManager)
	s.auditee = s.actorWith(domain.RoleAuditee)
	s.cae = s.actorWith(domain.RoleCAE)
}

func (s *ServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *ServiceSuite) actorWith(roles ...domain.Role) actor.Context {
	return actor.New(s.tenantID, domain.UserID(uuid.New()), roles, domain.SessionID(uuid.New()))
}

func (s *ServiceSuite) create(severity observation.Severity) *observation.Observation {
	o, err := s.svc.Create(context.Background(), s.auditor, service.CreateInput{
		Title:    "Access review not performed",
		Severity: severity,
	})
	s.Require().NoError(err)
	return o
}

// advance walks an observation to the given status along the happy path.
func (s *ServiceSuite) advance(id domain.ObservationID, target observation.Status) *observation.Observation {
	steps := []struct {
		to observation.Status
		by actor.Context
	}{
		{observation.StatusSubmitted, s.auditor},
		{observation.StatusReviewed, s.manager},
		{observation.StatusIssued, s.manager},
		{observation.StatusResponse, s.auditee},
		{observation.StatusCompliance, s.auditor},
	}
	var o *observation.Observation
	var err error
	for _, step := range steps {
		o, err = s.svc.Transition(context.Background(), step.by, id, step.to, "")
		s.Require().NoError(err)
		if step.to == target {
			return o
		}
	}
	s.Require().FailNow("target status not on the happy path", "target: %s", target)
	return nil
}

// ============================================================================
// Create
// ============================================================================

func (s *ServiceSuite) TestCreate() {
	s.Run("creates a DRAFT observation and records an audit entry", func() {
		o := s.create(observation.SeverityMedium)

		s.Equal(observation.StatusDraft, o.Status)
		s.Equal(1, o.OccurrenceCount)
		s.Equal(s.tenantID, o.TenantID)

		d := s.recorder.last()
		s.Equal(auditlog.ActionObservationCreated, d.ActionType)
		s.Equal(auditlog.OperationCreate, d.Operation)
		s.Equal(o.ID.String(), d.RecordID)
	})

	s.Run("rejects non-auditor roles", func() {
		for _, a := range []actor.Context{s.manager, s.auditee, s.cae} {
			_, err := s.svc.Create(context.Background(), a, service.CreateInput{
				Title:    "x",
				Severity: observation.SeverityLow,
			})
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		}
	})

	s.Run("rejects a blank title", func() {
		_, err := s.svc.Create(context.Background(), s.auditor, service.CreateInput{
			Title:    "   ",
			Severity: observation.SeverityLow,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects an unknown severity", func() {
		_, err := s.svc.Create(context.Background(), s.auditor, service.CreateInput{
			Title:    "x",
			Severity: observation.Severity("SEVERE"),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// ============================================================================
// Transition
// ============================================================================

func (s *ServiceSuite) TestTransitionHappyPath() {
	o := s.create(observation.SeverityLow)

	got, err := s.svc.Transition(context.Background(), s.auditor, o.ID, observation.StatusSubmitted, "")
	s.Require().NoError(err)
	s.Equal(observation.StatusSubmitted, got.Status)
	s.Equal(auditlog.ActionObservationSubmitted, s.recorder.last().ActionType)

	got, err = s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusReviewed, "")
	s.Require().NoError(err)
	s.Equal(observation.StatusReviewed, got.Status)
	s.Equal(auditlog.ActionObservationApproved, s.recorder.last().ActionType)

	stored, err := s.svc.Get(context.Background(), s.auditor, o.ID)
	s.Require().NoError(err)
	s.Equal(observation.StatusReviewed, stored.Status)
}

func (s *ServiceSuite) TestTransitionDenials() {
	s.Run("invalid edge is a conflict with the exact reason", func() {
		o := s.create(observation.SeverityLow)

		_, err := s.svc.Transition(context.Background(), s.auditor, o.ID, observation.StatusIssued, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal("Invalid transition from DRAFT to ISSUED", dErrors.MessageOf(err))
	})

	s.Run("wrong role is forbidden and names the edge roles", func() {
		o := s.create(observation.SeverityLow)

		_, err := s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusSubmitted, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal("User lacks required role: AUDITOR", dErrors.MessageOf(err))
	})

	s.Run("status is unchanged after a denial", func() {
		o := s.create(observation.SeverityLow)

		_, err := s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusSubmitted, "")
		s.Error(err)

		stored, err := s.svc.Get(context.Background(), s.auditor, o.ID)
		s.Require().NoError(err)
		s.Equal(observation.StatusDraft, stored.Status)
		s.Len(s.recorder.recorded, 1)
	})

	s.Run("unknown target status is invalid input", func() {
		o := s.create(observation.SeverityLow)

		_, err := s.svc.Transition(context.Background(), s.auditor, o.ID, observation.Status("ARCHIVED"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing observation is not found", func() {
		_, err := s.svc.Transition(context.Background(), s.auditor, domain.NewObservationID(), observation.StatusSubmitted, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestClose() {
	s.Run("manager closes a low severity observation with justification", func() {
		o := s.create(observation.SeverityLow)
		s.advance(o.ID, observation.StatusCompliance)

		got, err := s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusClosed, "verified remediation evidence")
		s.Require().NoError(err)
		s.Equal(observation.StatusClosed, got.Status)

		d := s.recorder.last()
		s.Equal(auditlog.ActionObservationClosed, d.ActionType)
		s.Equal("verified remediation evidence", d.Justification)
	})

	s.Run("closing without justification is rejected before any write", func() {
		o := s.create(observation.SeverityLow)
		s.advance(o.ID, observation.StatusCompliance)
		before := len(s.recorder.recorded)

		_, err := s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusClosed, "")
		var mj *auditlog.MissingJustificationError
		s.ErrorAs(err, &mj)
		s.Equal(auditlog.ActionObservationClosed, mj.ActionType)

		stored, gerr := s.svc.Get(context.Background(), s.auditor, o.ID)
		s.Require().NoError(gerr)
		s.Equal(observation.StatusCompliance, stored.Status)
		s.Len(s.recorder.recorded, before)
	})

	s.Run("high severity close requires the CAE", func() {
		o := s.create(observation.SeverityHigh)
		s.advance(o.ID, observation.StatusCompliance)

		_, err := s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusClosed, "done")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal("HIGH severity requires CAE to close", dErrors.MessageOf(err))

		got, err := s.svc.Transition(context.Background(), s.cae, o.ID, observation.StatusClosed, "done")
		s.Require().NoError(err)
		s.Equal(observation.StatusClosed, got.Status)
	})

	s.Run("closed observations accept no further transitions", func() {
		o := s.create(observation.SeverityLow)
		s.advance(o.ID, observation.StatusCompliance)
		_, err := s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusClosed, "ok")
		s.Require().NoError(err)

		_, err = s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusDraft, "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestTransitionSnapshots() {
	o := s.create(observation.SeverityMedium)

	_, err := s.svc.Transition(context.Background(), s.auditor, o.ID, observation.StatusSubmitted, "")
	s.Require().NoError(err)

	d := s.recorder.last()
	var oldData, newData map[string]any
	s.Require().NoError(json.Unmarshal(d.OldData, &oldData))
	s.Require().NoError(json.Unmarshal(d.NewData, &newData))
	s.Equal("DRAFT", oldData["status"])
	s.Equal("SUBMITTED", newData["status"])
	s.Equal("MEDIUM", newData["severity"])
}

// ============================================================================
// AvailableTransitions
// ============================================================================

func (s *ServiceSuite) TestAvailableTransitions() {
	o := s.create(observation.SeverityLow)
	_, err := s.svc.Transition(context.Background(), s.auditor, o.ID, observation.StatusSubmitted, "")
	s.Require().NoError(err)

	got, err := s.svc.AvailableTransitions(context.Background(), s.manager, o.ID)
	s.Require().NoError(err)

	labels := make(map[observation.Status]string, len(got))
	for _, t := range got {
		labels[t.To] = t.Label
	}
	s.Equal(map[observation.Status]string{
		observation.StatusReviewed: "Approve",
		observation.StatusDraft:    "Return to Draft",
	}, labels)

	got, err = s.svc.AvailableTransitions(context.Background(), s.auditee, o.ID)
	s.Require().NoError(err)
	s.Empty(got)
}

// ============================================================================
// RecordRecurrence
// ============================================================================

func (s *ServiceSuite) TestRecordRecurrence() {
	s.Run("second occurrence escalates one level", func() {
		o := s.create(observation.SeverityLow)

		got, err := s.svc.RecordRecurrence(context.Background(), s.auditor, o.ID)
		s.Require().NoError(err)
		s.Equal(2, got.OccurrenceCount)
		s.Equal(observation.SeverityMedium, got.Severity)
		s.Equal(auditlog.ActionObservationSeverityEscalated, s.recorder.last().ActionType)
	})

	s.Run("third occurrence jumps to critical", func() {
		o := s.create(observation.SeverityLow)

		_, err := s.svc.RecordRecurrence(context.Background(), s.auditor, o.ID)
		s.Require().NoError(err)
		got, err := s.svc.RecordRecurrence(context.Background(), s.manager, o.ID)
		s.Require().NoError(err)
		s.Equal(3, got.OccurrenceCount)
		s.Equal(observation.SeverityCritical, got.Severity)
	})

	s.Run("recurrence at the cap records without escalating", func() {
		o := s.create(observation.SeverityCritical)

		got, err := s.svc.RecordRecurrence(context.Background(), s.auditor, o.ID)
		s.Require().NoError(err)
		s.Equal(observation.SeverityCritical, got.Severity)
		s.Equal(auditlog.ActionObservationRecurrenceRecorded, s.recorder.last().ActionType)
	})

	s.Run("rejected on a closed observation", func() {
		o := s.create(observation.SeverityLow)
		s.advance(o.ID, observation.StatusCompliance)
		_, err := s.svc.Transition(context.Background(), s.manager, o.ID, observation.StatusClosed, "ok")
		s.Require().NoError(err)

		_, err = s.svc.RecordRecurrence(context.Background(), s.auditor, o.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("auditee may not record recurrences", func() {
		o := s.create(observation.SeverityLow)

		_, err := s.svc.RecordRecurrence(context.Background(), s.auditee, o.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
