package internaltypes

import "errors"

var (
	// ErrElementNotFound is returned when a page element could not be located
	// before the lookup timeout.
	ErrElementNotFound = errors.New("element not found")

	// ErrRetryExhausted means the site kept showing its Retry prompt after the
	// configured number of resubmissions.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation code")
)
