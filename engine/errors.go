/*
errors.go - Error types for the aggregation engine

PURPOSE:
  The engine has a deliberately small error taxonomy: either the primary
  entity of a query does not exist (NotFound), or a computation over the
  record set failed (InternalComputationError). Date-parse failures and
  zero denominators are never errors - they are policy-defined exclusions
  and zero results respectively.

BOUNDARY CONTRACT:
  Callers map these to transport-level responses with errors.Is. The
  engine never exposes raw storage or decoding text to clients; handlers
  log the wrapped cause and forward only the bounded kind.
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when the requested primary entity is absent
	// from the record set that defines it (allocations for MPs and states,
	// expenditures for vendors and categories).
	ErrNotFound = errors.New("entity not found")

	// ErrComputation is returned for any other fault while assembling a
	// profile: storage failures, malformed record shapes, unexpected null
	// patterns.
	ErrComputation = errors.New("internal computation error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Kind string // "mp", "vendor", "state", "category"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ComputationError wraps an internal fault with the operation that hit it.
type ComputationError struct {
	Op  string
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ComputationError) Unwrap() error { return ErrComputation }

// IsNotFound reports whether err indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func computeErr(op string, err error) error {
	return &ComputationError{Op: op, Err: err}
}
