package ballot

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Voting errors
	ErrInvalidProjectID  = errors.New("ballot: invalid project id")
	ErrAlreadyVoted      = errors.New("ballot: already voted for project")
	ErrFeeTransferFailed = errors.New("ballot: fee transfer failed")
	ErrVoteConflict      = errors.New("ballot: concurrent vote from the same voter")

	// Access errors
	ErrUnauthorized  = errors.New("ballot: caller is not the owner")
	ErrMissingCaller = errors.New("ballot: no caller identity on context")

	// Fee errors
	ErrInvalidFee       = errors.New("ballot: invalid fee amount")
	ErrRefundFailed     = errors.New("ballot: fee refund failed")
	ErrWithdrawFailed   = errors.New("ballot: fee withdrawal transfer failed")
	ErrSettingsNotFound = errors.New("ballot: fee settings not initialised")

	// General errors
	ErrNotFound      = errors.New("ballot: not found")
	ErrVoterNotFound = errors.New("ballot: voter not found")
	ErrInvalidInput  = errors.New("ballot: invalid input")

	// Store errors
	ErrStoreNotReady = errors.New("ballot: store not ready")
	ErrStoreClosed   = errors.New("ballot: store is closed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ballot: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "ballot: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("ballot: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrVoterNotFound) ||
		errors.Is(err, ErrSettingsNotFound) ||
		errors.Is(err, ErrInvalidProjectID)
}

// IsAccessError returns true if the caller was missing or not allowed.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrMissingCaller)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVoteConflict) ||
		errors.Is(err, ErrStoreNotReady)
}
