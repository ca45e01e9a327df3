package entities

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services and handlers.
var (
	// ErrStatusConflict means another actor already moved the withdrawal
	// out of the expected precondition set. Callers treat it as a no-op
	// "already processed" outcome, never as something to retry.
	ErrStatusConflict = errors.New("withdrawal no longer processable")

	// ErrDuplicateWebhookEvent means the event id was already handled.
	ErrDuplicateWebhookEvent = errors.New("webhook event already processed")

	ErrWithdrawalNotFound   = errors.New("withdrawal not found")
	ErrInsufficientBalance  = errors.New("insufficient available balance")
	ErrAmountOutOfBounds    = errors.New("amount outside configured withdrawal bounds")
	ErrDailyLimitExceeded   = errors.New("daily withdrawal limit exceeded")
	ErrMonthlyLimitExceeded = errors.New("monthly withdrawal limit exceeded")
	ErrNotCancellable       = errors.New("withdrawal can only be cancelled while pending")
	ErrRetriesExhausted     = errors.New("withdrawal retry budget exhausted")
)

// RoutingErrorCode classifies provider routing failures.
type RoutingErrorCode string

const (
	RoutingCountryNotSupported RoutingErrorCode = "country_not_supported"
	RoutingMethodNotAvailable  RoutingErrorCode = "method_not_available_for_country"
	RoutingProviderDisabled    RoutingErrorCode = "provider_disabled"
	RoutingCountrySanctioned   RoutingErrorCode = "country_sanctioned"
)

// RoutingError is a typed routing failure surfaced synchronously to the
// caller. No state is mutated when one is returned.
type RoutingError struct {
	Code    RoutingErrorCode
	Country string
	Method  MethodType
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed (%s): country=%s method=%s", e.Code, e.Country, e.Method)
}

// IsRoutingError extracts a RoutingError from err, if present.
func IsRoutingError(err error) (*RoutingError, bool) {
	var re *RoutingError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ErrorResponse is the standard API error body.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
