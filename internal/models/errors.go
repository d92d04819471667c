package models

import (
	"errors"
	"fmt"
)

// Application-wide standard errors
var (
	// Common Resource/Store Errors
	ErrNotFound = errors.New("resource not found")
	ErrConflict = errors.New("store conflict")

	// User & Authentication Errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Token Errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Pipeline failure taxonomy
	ErrContentContract       = errors.New("story output violates content contract")
	ErrFulfillmentIncomplete = errors.New("asset fulfillment incomplete")
	ErrPersistenceFailed     = errors.New("storybook persistence failed")

	// Entitlement denial. The wrapped variants carry the machine-readable
	// reason; both match ErrQuotaExceeded via errors.Is.
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrFreeQuotaExceeded  = fmt.Errorf("%w: free story quota exhausted", ErrQuotaExceeded)
	ErrDailyQuotaExceeded = fmt.Errorf("%w: daily creation limit reached", ErrQuotaExceeded)

	// Webhook integrity failures
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidInput   = errors.New("invalid input data")
)

// QuotaReason returns the machine-readable reason for an entitlement denial,
// or an empty string when err is not a quota error.
func QuotaReason(err error) string {
	switch {
	case errors.Is(err, ErrFreeQuotaExceeded):
		return "free_total"
	case errors.Is(err, ErrDailyQuotaExceeded):
		return "daily_limit"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	default:
		return ""
	}
}
