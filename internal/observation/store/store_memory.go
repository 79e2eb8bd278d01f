package store

import (
	"context"
	"sync"
	"time"

	"veritrail/internal/observation"
	"veritrail/internal/tenantscope"
	"veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// MemoryStore is the in-memory observation store used by unit tests and
// local development. Rows are partitioned by tenant the same way the
// schema's row-security policy partitions them.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[domain.TenantID]map[domain.ObservationID]observation.Observation
}

// NewMemory constructs an empty in-memory observation store.
func NewMemory() *MemoryStore {
	return &MemoryStore{rows: make(map[domain.TenantID]map[domain.ObservationID]observation.Observation)}
}

func (s *MemoryStore) Insert(_ context.Context, scope tenantscope.Scope, o *observation.Observation) error {
	if o.TenantID != scope.TenantID() {
		return &tenantscope.IsolationViolationError{Table: "observations"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.rows[o.TenantID]
	if tenant == nil {
		tenant = make(map[domain.ObservationID]observation.Observation)
		s.rows[o.TenantID] = tenant
	}
	if _, exists := tenant[o.ID]; exists {
		return sentinel.ErrConflict
	}
	tenant[o.ID] = *o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, scope tenantscope.Scope, id domain.ObservationID) (*observation.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(scope, id)
}

// GetForUpdate behaves like Get; the memory store's coarse lock stands in
// for the database row lock.
func (s *MemoryStore) GetForUpdate(_ context.Context, scope tenantscope.Scope, id domain.ObservationID) (*observation.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(scope, id)
}

func (s *MemoryStore) UpdateStatus(_ context.Context, scope tenantscope.Scope, id domain.ObservationID, status observation.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.find(scope, id)
	if err != nil {
		return err
	}
	o.Status = status
	o.UpdatedAt = now
	s.rows[scope.TenantID()][id] = *o
	return nil
}

func (s *MemoryStore) UpdateSeverity(_ context.Context, scope tenantscope.Scope, id domain.ObservationID, severity observation.Severity, occurrenceCount int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.find(scope, id)
	if err != nil {
		return err
	}
	o.Severity = severity
	o.OccurrenceCount = occurrenceCount
	o.UpdatedAt = now
	s.rows[scope.TenantID()][id] = *o
	return nil
}

func (s *MemoryStore) find(scope tenantscope.Scope, id domain.ObservationID) (*observation.Observation, error) {
	tenant := s.rows[scope.TenantID()]
	if tenant == nil {
		return nil, sentinel.ErrNotFound
	}
	o, ok := tenant[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := scope.AssertOwned("observations", o.TenantID); err != nil {
		return nil, err
	}
	return &o, nil
}
