package observation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/observation"
	"veritrail/pkg/domain"
)

func roles(rs ...domain.Role) []domain.Role { return rs }

func TestCanTransitionHappyPath(t *testing.T) {
	tests := []struct {
		name     string
		from, to observation.Status
		roles    []domain.Role
		severity observation.Severity
	}{
		{"auditor submits draft", observation.StatusDraft, observation.StatusSubmitted, roles(domain.RoleAuditor), observation.SeverityLow},
		{"manager approves", observation.StatusSubmitted, observation.StatusReviewed, roles(domain.RoleAuditManager), observation.SeverityLow},
		{"manager returns to draft", observation.StatusSubmitted, observation.StatusDraft, roles(domain.RoleAuditManager), observation.SeverityLow},
		{"manager issues", observation.StatusReviewed, observation.StatusIssued, roles(domain.RoleAuditManager), observation.SeverityLow},
		{"manager returns for rework", observation.StatusReviewed, observation.StatusSubmitted, roles(domain.RoleAuditManager), observation.SeverityLow},
		{"auditee records response", observation.StatusIssued, observation.StatusResponse, roles(domain.RoleAuditee), observation.SeverityLow},
		{"auditor verifies compliance", observation.StatusResponse, observation.StatusCompliance, roles(domain.RoleAuditor), observation.SeverityLow},
		{"manager verifies compliance", observation.StatusResponse, observation.StatusCompliance, roles(domain.RoleAuditManager), observation.SeverityLow},
		{"manager closes low severity", observation.StatusCompliance, observation.StatusClosed, roles(domain.RoleAuditManager), observation.SeverityLow},
		{"manager closes medium severity", observation.StatusCompliance, observation.StatusClosed, roles(domain.RoleAuditManager), observation.SeverityMedium},
		{"cae closes high severity", observation.StatusCompliance, observation.StatusClosed, roles(domain.RoleCAE), observation.SeverityHigh},
		{"cae closes critical severity", observation.StatusCompliance, observation.StatusClosed, roles(domain.RoleCAE), observation.SeverityCritical},
		{"multi-role actor uses any match", observation.StatusDraft, observation.StatusSubmitted, roles(domain.RoleAuditee, domain.RoleAuditor), observation.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := observation.CanTransition(tt.from, tt.to, tt.roles, tt.severity)
			assert.True(t, d.Allowed, "reason: %s", d.Reason)
			assert.Empty(t, d.Reason)
		})
	}
}

func TestCanTransitionInvalidEdges(t *testing.T) {
	tests := []struct {
		from, to observation.Status
		reason   string
	}{
		{observation.StatusDraft, observation.StatusIssued, "Invalid transition from DRAFT to ISSUED"},
		{observation.StatusDraft, observation.StatusClosed, "Invalid transition from DRAFT to CLOSED"},
		{observation.StatusSubmitted, observation.StatusIssued, "Invalid transition from SUBMITTED to ISSUED"},
		{observation.StatusIssued, observation.StatusDraft, "Invalid transition from ISSUED to DRAFT"},
		{observation.StatusResponse, observation.StatusClosed, "Invalid transition from RESPONSE to CLOSED"},
		{observation.StatusCompliance, observation.StatusDraft, "Invalid transition from COMPLIANCE to DRAFT"},
		{observation.StatusClosed, observation.StatusDraft, "Invalid transition from CLOSED to DRAFT"},
		{observation.StatusClosed, observation.StatusCompliance, "Invalid transition from CLOSED to COMPLIANCE"},
		{observation.StatusDraft, observation.StatusDraft, "Invalid transition from DRAFT to DRAFT"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			// Even the CAE cannot use an edge that does not exist.
			d := observation.CanTransition(tt.from, tt.to, roles(domain.RoleCAE, domain.RoleAuditManager), observation.SeverityLow)
			require.False(t, d.Allowed)
			assert.Equal(t, observation.DenialInvalidTransition, d.Kind)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestCanTransitionRoleDenials(t *testing.T) {
	tests := []struct {
		name     string
		from, to observation.Status
		roles    []domain.Role
		reason   string
	}{
		{"manager cannot submit", observation.StatusDraft, observation.StatusSubmitted, roles(domain.RoleAuditManager), "User lacks required role: AUDITOR"},
		{"auditor cannot approve", observation.StatusSubmitted, observation.StatusReviewed, roles(domain.RoleAuditor), "User lacks required role: AUDIT_MANAGER"},
		{"auditee cannot issue", observation.StatusReviewed, observation.StatusIssued, roles(domain.RoleAuditee), "User lacks required role: AUDIT_MANAGER"},
		{"auditor cannot record response", observation.StatusIssued, observation.StatusResponse, roles(domain.RoleAuditor), "User lacks required role: AUDITEE"},
		{"auditee cannot verify compliance", observation.StatusResponse, observation.StatusCompliance, roles(domain.RoleAuditee), "User lacks required role: AUDITOR or AUDIT_MANAGER"},
		{"auditor cannot close", observation.StatusCompliance, observation.StatusClosed, roles(domain.RoleAuditor), "User lacks required role: AUDIT_MANAGER or CAE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := observation.CanTransition(tt.from, tt.to, tt.roles, observation.SeverityLow)
			require.False(t, d.Allowed)
			assert.Equal(t, observation.DenialRoleNotAuthorized, d.Kind)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestCanTransitionCloseGuards(t *testing.T) {
	t.Run("closing without a severity is rejected", func(t *testing.T) {
		d := observation.CanTransition(observation.StatusCompliance, observation.StatusClosed,
			roles(domain.RoleAuditManager), "")
		require.False(t, d.Allowed)
		assert.Equal(t, observation.DenialSeverityRequired, d.Kind)
		assert.Equal(t, "Severity is required to close an observation", d.Reason)
	})

	t.Run("manager cannot close high severity", func(t *testing.T) {
		d := observation.CanTransition(observation.StatusCompliance, observation.StatusClosed,
			roles(domain.RoleAuditManager), observation.SeverityHigh)
		require.False(t, d.Allowed)
		assert.Equal(t, observation.DenialSeverityGuard, d.Kind)
		assert.Equal(t, "HIGH severity requires CAE to close", d.Reason)
	})

	t.Run("manager cannot close critical severity", func(t *testing.T) {
		d := observation.CanTransition(observation.StatusCompliance, observation.StatusClosed,
			roles(domain.RoleAuditManager), observation.SeverityCritical)
		require.False(t, d.Allowed)
		assert.Equal(t, observation.DenialSeverityGuard, d.Kind)
		assert.Equal(t, "CRITICAL severity requires CAE to close", d.Reason)
	})

	t.Run("role check precedes the severity guard", func(t *testing.T) {
		d := observation.CanTransition(observation.StatusCompliance, observation.StatusClosed,
			roles(domain.RoleAuditee), observation.SeverityHigh)
		require.False(t, d.Allowed)
		assert.Equal(t, observation.DenialRoleNotAuthorized, d.Kind)
	})
}

func TestAvailableTransitions(t *testing.T) {
	t.Run("manager menu from submitted", func(t *testing.T) {
		got := observation.AvailableTransitions(observation.StatusSubmitted, roles(domain.RoleAuditManager), observation.SeverityLow)

		labels := map[observation.Status]string{}
		for _, tr := range got {
			labels[tr.To] = tr.Label
		}
		assert.Equal(t, map[observation.Status]string{
			observation.StatusReviewed: "Approve",
			observation.StatusDraft:    "Return to Draft",
		}, labels)
	})

	t.Run("closed is terminal", func(t *testing.T) {
		got := observation.AvailableTransitions(observation.StatusClosed, roles(domain.RoleCAE, domain.RoleAuditManager, domain.RoleAuditor, domain.RoleAuditee), observation.SeverityLow)
		assert.Empty(t, got)
	})

	t.Run("close is hidden from the manager for high severity", func(t *testing.T) {
		got := observation.AvailableTransitions(observation.StatusCompliance, roles(domain.RoleAuditManager), observation.SeverityHigh)
		assert.Empty(t, got)

		got = observation.AvailableTransitions(observation.StatusCompliance, roles(domain.RoleCAE), observation.SeverityHigh)
		require.Len(t, got, 1)
		assert.Equal(t, "Close", got[0].Label)
	})

	t.Run("auditee sees nothing it cannot do", func(t *testing.T) {
		got := observation.AvailableTransitions(observation.StatusDraft, roles(domain.RoleAuditee), observation.SeverityLow)
		assert.Empty(t, got)
	})
}

func TestActionTypeFor(t *testing.T) {
	assert.Equal(t, "observation.submitted", observation.ActionTypeFor(observation.StatusDraft, observation.StatusSubmitted))
	assert.Equal(t, "observation.closed", observation.ActionTypeFor(observation.StatusCompliance, observation.StatusClosed))
	assert.Equal(t, "observation.status_changed", observation.ActionTypeFor(observation.StatusClosed, observation.StatusDraft))
}
