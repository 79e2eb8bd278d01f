// Package tenantscope implements the isolation scope: the only sanctioned
// way to touch tenant-scoped tables. A scope wraps one database transaction,
// binds the actor's tenant id as a transaction-local server setting consumed
// by the schema's row-security policies, and asserts in-process that every
// row handed back belongs to the scope's tenant.
package tenantscope

import (
	"context"

	"github.com/jackc/pgx/v5"

	"veritrail/internal/actor"
	"veritrail/pkg/domain"
	txcontext "veritrail/pkg/platform/tx"
)

// Scope is the handle passed to work running inside a tenant transaction.
// Stores use Tx to reach the transaction and AssertOwned on every row they
// intend to return; the row-security policy is the primary control, the
// explicit tenant predicate in each query is the secondary, and AssertOwned
// is the in-process last line of defense.
type Scope interface {
	// Actor returns the actor context the scope was opened for.
	Actor() actor.Context

	// TenantID returns the tenant the scope is bound to.
	TenantID() domain.TenantID

	// AssertOwned verifies a returned row's tenant against the scope's
	// tenant. A mismatch is an IsolationViolation: the scope's transaction
	// will be rolled back in full, never partially committed.
	AssertOwned(table string, owner domain.TenantID) error

	// Tx returns the scope's transaction after verifying that the context
	// still carries it. Calling it outside the scope's lifetime, or with a
	// context from a different scope, fails loudly.
	Tx(ctx context.Context) (pgx.Tx, error)
}

type pgxScope struct {
	actr actor.Context
	tx   pgx.Tx
}

func (s *pgxScope) Actor() actor.Context      { return s.actr }
func (s *pgxScope) TenantID() domain.TenantID { return s.actr.TenantID }

func (s *pgxScope) AssertOwned(table string, owner domain.TenantID) error {
	if owner == s.actr.TenantID {
		return nil
	}
	return &IsolationViolationError{Table: table}
}

func (s *pgxScope) Tx(ctx context.Context) (pgx.Tx, error) {
	tx, ok := txcontext.From(ctx)
	if !ok {
		return nil, ErrNoScope
	}
	if tx != s.tx {
		return nil, ErrScopeMismatch
	}
	return tx, nil
}

// detachedScope carries an actor but no transaction. Memory stores and unit
// tests use it; any attempt to reach a transaction fails with ErrNoScope.
type detachedScope struct {
	actr actor.Context
}

// NewDetached returns a Scope bound to an actor but not to a transaction.
func NewDetached(a actor.Context) Scope {
	return &detachedScope{actr: a}
}

func (s *detachedScope) Actor() actor.Context      { return s.actr }
func (s *detachedScope) TenantID() domain.TenantID { return s.actr.TenantID }

func (s *detachedScope) AssertOwned(table string, owner domain.TenantID) error {
	if owner == s.actr.TenantID {
		return nil
	}
	return &IsolationViolationError{Table: table}
}

func (s *detachedScope) Tx(context.Context) (pgx.Tx, error) {
	return nil, ErrNoScope
}
