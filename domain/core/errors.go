package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrConsentNotFound  = fmt.Errorf("%w: consent record", ErrNotFound)
	ErrQueryNotFound    = fmt.Errorf("%w: query", ErrNotFound)
	ErrApprovalNotFound = fmt.Errorf("%w: approval", ErrNotFound)

	// Consent errors
	ErrConsentDenied      = errors.New("insufficient consent for research use")
	ErrConsentExpired     = errors.New("consent expired")
	ErrConsentWithdrawn   = errors.New("consent withdrawal requested")
	ErrDataPurged         = errors.New("subject data purged")
	ErrGracePeriodActive  = errors.New("withdrawal grace period still active")
	ErrAlreadyInitialized = errors.New("consent record already initialized")

	// Query errors
	ErrQueryTooComplex   = errors.New("query complexity exceeds ceiling")
	ErrRoleNotPermitted  = errors.New("role not permitted for query type")
	ErrApprovalDecided   = errors.New("approval already decided")
	ErrApprovalRequired  = errors.New("query requires approval")
	ErrQueryTimeout      = errors.New("query timed out")
	ErrInsufficientData  = errors.New("insufficient data for analysis")
	ErrInvalidHypothesis = errors.New("invalid hypothesis")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

func NewConsentError(subject SubjectID, reason error) error {
	return fmt.Errorf("%w: subject %s", reason, subject)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConsentError(err error) bool {
	return errors.Is(err, ErrConsentDenied) ||
		errors.Is(err, ErrConsentExpired) ||
		errors.Is(err, ErrConsentWithdrawn) ||
		errors.Is(err, ErrDataPurged)
}
