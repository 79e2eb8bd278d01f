package auditlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"veritrail/internal/auditlog/metrics"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// Recorder writes immutable audit entries. It must be called from inside an
// isolation scope belonging to the same actor whose mutation is being
// recorded; calling it outside a scope is a programming error and fails
// loudly rather than silently writing with wrong context.
type Recorder struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	retentionYears int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderMetrics attaches audit metrics.
func WithRecorderMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithRetentionYears overrides the regulatory retention horizon.
func WithRetentionYears(years int) RecorderOption {
	return func(r *Recorder) {
		if years > 0 {
			r.retentionYears = years
		}
	}
}

// NewRecorder constructs an audit recorder.
func NewRecorder(logger *slog.Logger, opts ...RecorderOption) (*Recorder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	r := &Recorder{logger: logger, retentionYears: DefaultRetentionYears}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record inserts exactly one audit entry inside the scope's transaction.
// The sequence number is assigned by the database's global sequence, so two
// concurrent transactions never receive the same number and a committed
// transaction's number reflects commit order as closely as the store's
// isolation level allows. retention_expires_at is computed at insert time
// from the retention horizon.
func (r *Recorder) Record(ctx context.Context, scope tenantscope.Scope, d Descriptor) (*Entry, error) {
	if err := d.Validate(); err != nil {
		if _, ok := err.(*MissingJustificationError); ok {
			r.metrics.IncrementRejected("missing_justification")
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
		}
		r.metrics.IncrementRejected("invalid_descriptor")
		return nil, err
	}

	tx, err := scope.Tx(ctx)
	if err != nil {
		r.metrics.IncrementRejected("no_scope")
		return nil, fmt.Errorf("audit record outside tenant scope: %w", err)
	}

	a := scope.Actor()

	var userID *uuid.UUID
	if !a.IsSystem() {
		uid := uuid.UUID(a.UserID)
		userID = &uid
	}

	justification := d.Justification
	if justification == "" {
		justification = a.Justification
	}

	entry := Entry{
		TenantID:      a.TenantID,
		TableName:     d.TableName,
		RecordID:      d.RecordID,
		Operation:     d.Operation,
		ActionType:    d.ActionType,
		OldData:       d.OldData,
		NewData:       d.NewData,
		Justification: justification,
		IPAddress:     a.IPAddress,
		SessionID:     sessionIDString(a.SessionID),
	}

	query := `
		INSERT INTO audit_log (
			tenant_id, table_name, record_id, operation, action_type,
			old_data, new_data, user_id, justification, ip_address,
			session_id, created_at, retention_expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			now(), now() + make_interval(years => $12))
		RETURNING sequence_number, created_at, retention_expires_at
	`
	err = tx.QueryRow(ctx, query,
		uuid.UUID(a.TenantID),
		d.TableName,
		d.RecordID,
		string(d.Operation),
		nullIfEmpty(d.ActionType),
		d.OldData,
		d.NewData,
		userID,
		nullIfEmpty(justification),
		nullIfEmpty(a.IPAddress),
		nullIfEmpty(sessionIDString(a.SessionID)),
		r.retentionYears,
	).Scan(&entry.SequenceNumber, &entry.CreatedAt, &entry.RetentionExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if userID != nil {
		uid := domain.UserID(*userID)
		entry.UserID = &uid
	}

	r.metrics.IncrementRecorded(d.ActionType)
	return &entry, nil
}

func sessionIDString(id domain.SessionID) string {
	if id.IsNil() {
		return ""
	}
	return id.String()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
