package tenantscope

import "errors"

// ErrIsolationViolation is the match target for isolation violations.
// A violation means a row surfaced inside a scope belongs to a different
// tenant than the scope's actor. It is a hard invariant violation: fatal,
// never silently corrected, never retried.
var ErrIsolationViolation = errors.New("tenant isolation violation")

// ErrNoScope is returned when an operation that must run inside a tenant
// scope is called without one. This is a programming error and fails loudly
// rather than writing with wrong context.
var ErrNoScope = errors.New("operation requires an active tenant scope")

// ErrScopeMismatch is returned when the transaction carried by the context
// does not belong to the scope it is used with.
var ErrScopeMismatch = errors.New("context transaction does not belong to this scope")

// IsolationViolationError reports which table produced the violating row.
// The message deliberately never includes the foreign tenant's identifier:
// nothing about another tenant may leak into user-visible output.
type IsolationViolationError struct {
	Table string
}

func (e *IsolationViolationError) Error() string {
	if e.Table == "" {
		return "tenant isolation violation: query returned a row owned by another tenant"
	}
	return "tenant isolation violation: query on " + e.Table + " returned a row owned by another tenant"
}

func (e *IsolationViolationError) Is(target error) bool {
	return target == ErrIsolationViolation
}
