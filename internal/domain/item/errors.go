package item

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired means no authenticated user was presented.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrSecurityFactorRequired means policy mandates a second factor before
	// granting financial write access and the caller has none.
	ErrSecurityFactorRequired = errors.New("security factor required")

	// ErrSubscriptionRequired means the caller has no active plan.
	ErrSubscriptionRequired = errors.New("active subscription required")

	// ErrConnectionLimitReached means the caller's plan does not allow
	// another linked institution.
	ErrConnectionLimitReached = errors.New("connection limit reached")

	// ErrItemNotFound covers both a missing item and an item the caller
	// does not own when leaking existence would be worse than ambiguity.
	ErrItemNotFound = errors.New("item not found")

	// ErrForbidden is an explicit ownership failure.
	ErrForbidden = errors.New("forbidden")
)

// DeletionRateLimitedError reports that the deletion cooldown is still
// running and how many whole days remain.
type DeletionRateLimitedError struct {
	DaysUntilNext int
}

func (e *DeletionRateLimitedError) Error() string {
	return fmt.Sprintf("deletion rate limited: %d day(s) until next removal", e.DaysUntilNext)
}
