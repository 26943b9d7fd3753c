package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports bad input: a non-positive amount, a malformed
// transfer, or an unknown enum value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a transaction or account that does not exist or is
// not owned by the calling user. Ownership failures are deliberately
// indistinguishable from absence.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError reports a concurrent modification detected by the optimistic
// version check on a transaction row.
type ConflictError struct {
	Resource string
	ID       uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}

// StorageError wraps an underlying persistence failure, including a failed
// transactional scope.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
