// Package store persists observations. Stores are pure I/O: lifecycle
// policy lives in the observation package and is applied by the service.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"veritrail/internal/observation"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// PostgresStore persists observations in PostgreSQL. All statements run on
// the scope's transaction and carry an explicit tenant predicate on top of
// the schema's row-security policy.
type PostgresStore struct{}

// NewPostgres constructs a PostgreSQL-backed observation store.
func NewPostgres() *PostgresStore {
	return &PostgresStore{}
}

const observationColumns = `id, tenant_id, title, status, severity, occurrence_count, created_at, updated_at`

// Insert creates a new observation row.
func (s *PostgresStore) Insert(ctx context.Context, scope tenantscope.Scope, o *observation.Observation) error {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}
	if o.TenantID != scope.TenantID() {
		return &tenantscope.IsolationViolationError{Table: "observations"}
	}

	query := `
		INSERT INTO observations (id, tenant_id, title, status, severity, occurrence_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, query,
		uuid.UUID(o.ID),
		uuid.UUID(o.TenantID),
		o.Title,
		string(o.Status),
		string(o.Severity),
		o.OccurrenceCount,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// Get fetches one observation.
func (s *PostgresStore) Get(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID) (*observation.Observation, error) {
	return s.get(ctx, scope, id, false)
}

// GetForUpdate fetches one observation and takes its row lock, serializing
// concurrent transition attempts for the rest of the scope's transaction.
// The read-check-write of the current status must happen inside the same
// transaction that performs the write.
func (s *PostgresStore) GetForUpdate(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID) (*observation.Observation, error) {
	return s.get(ctx, scope, id, true)
}

func (s *PostgresStore) get(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID, forUpdate bool) (*observation.Observation, error) {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + observationColumns + ` FROM observations WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	o, err := scanObservation(tx.QueryRow(ctx, query, uuid.UUID(id), scope.TenantID().String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get observation: %w", err)
	}
	if err := scope.AssertOwned("observations", o.TenantID); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus moves an observation to a new status.
func (s *PostgresStore) UpdateStatus(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID, status observation.Status, now time.Time) error {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE observations SET status = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4`,
		string(status), now, uuid.UUID(id), scope.TenantID().String(),
	)
	if err != nil {
		return fmt.Errorf("update observation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// UpdateSeverity records a recurrence: the new occurrence count and the
// (possibly escalated) severity.
func (s *PostgresStore) UpdateSeverity(ctx context.Context, scope tenantscope.Scope, id domain.ObservationID, severity observation.Severity, occurrenceCount int, now time.Time) error {
	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE observations SET severity = $1, occurrence_count = $2, updated_at = $3 WHERE id = $4 AND tenant_id = $5`,
		string(severity), occurrenceCount, now, uuid.UUID(id), scope.TenantID().String(),
	)
	if err != nil {
		return fmt.Errorf("update observation severity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanObservation(row pgx.Row) (*observation.Observation, error) {
	var (
		o        observation.Observation
		id       uuid.UUID
		tenantID uuid.UUID
		status   string
		severity string
	)
	err := row.Scan(&id, &tenantID, &o.Title, &status, &severity, &o.OccurrenceCount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.ID = domain.ObservationID(id)
	o.TenantID = domain.TenantID(tenantID)
	o.Status = observation.Status(status)
	o.Severity = observation.Severity(severity)
	return &o, nil
}
