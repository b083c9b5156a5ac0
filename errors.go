package factpod

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned by HandleCallback when the presented state is
// absent, expired, or already consumed. The three cases are deliberately
// indistinguishable so a callback probe learns nothing about issued states.
var ErrInvalidState = errors.New("authorization state is invalid or expired")

// ServiceError is an orchestration-level failure. It names the site and the
// flow step that failed and retains the originating error as its cause, so
// errors.Is and errors.As reach the root (DiscoveryError, RegistrationError,
// TokenExchangeError, RepositoryError).
type ServiceError struct {
	Site string
	Step string
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Site != "" {
		return fmt.Sprintf("fact pod %s: %s failed: %v", e.Site, e.Step, e.Err)
	}
	return fmt.Sprintf("fact pod: %s failed: %v", e.Step, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func newServiceError(site, step string, err error) *ServiceError {
	return &ServiceError{Site: site, Step: step, Err: err}
}
