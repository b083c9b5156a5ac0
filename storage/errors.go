package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by repository implementations. Absence of a
// record surfaces the bare sentinel so callers can branch with errors.Is;
// infrastructure failures and conflicts come wrapped in a RepositoryError.
var (
	// ErrFactPodConfigNotFound is returned when no enablement record exists
	// for the requested site.
	ErrFactPodConfigNotFound = errors.New("fact pod config not found")

	// ErrClientConfigNotFound is returned when no client registration exists
	// for the requested (user, site) pair.
	ErrClientConfigNotFound = errors.New("client config not found")

	// ErrStateNotFound is returned when an authorization state does not
	// exist, has expired, or was already consumed.
	ErrStateNotFound = errors.New("authorization state not found")

	// ErrStateConflict is returned when inserting an authorization state
	// whose state value already exists.
	ErrStateConflict = errors.New("authorization state already exists")
)

// RepositoryError wraps a storage failure with the operation and entity it
// occurred on, so callers can log where a write or read went wrong without
// parsing error strings.
type RepositoryError struct {
	Op     string // operation, e.g. "put", "get", "list"
	Entity string // record family, e.g. "fact_pod_config", "auth_state"
	Err    error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError wraps err with operation and entity context.
func NewRepositoryError(op, entity string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Entity: entity, Err: err}
}
