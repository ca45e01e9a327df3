package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest is the uniform input to every provider adapter. The
// multi-step detail of a rail (quote, recipient, transfer, funding)
// never leaks past the adapter boundary.
type PaymentRequest struct {
	WithdrawalID   uuid.UUID
	AmountMinor    int64
	SourceCurrency string
	TargetCurrency string
	Recipient      PaymentDetails
	Reference      string
	// IdempotencyKey is stable for a given (withdrawal, attempt) pair so
	// a timed-out outbound call retried by us cannot double-pay.
	IdempotencyKey string
}

// PaymentIdempotencyKey derives the adapter-call idempotency key from
// the withdrawal id and the attempt number.
func PaymentIdempotencyKey(withdrawalID uuid.UUID, retryCount int) string {
	return fmt.Sprintf("%s-%d", withdrawalID, retryCount)
}

// PaymentResult is the uniform outcome of an adapter call.
type PaymentResult struct {
	Success       bool
	TransactionID string
	Status        string // provider-native state string
	Fees          *decimal.Decimal
	ExchangeRate  *decimal.Decimal
	Message       string
	RawResponse   json.RawMessage
}

// ProviderEvent is one normalized webhook delivery, after signature
// verification and before deduplication.
type ProviderEvent struct {
	Provider   Provider
	EventID    string
	EventType  string
	TransferID string
	Reference  string
	RawState   string
	Status     WithdrawalStatus // engine status mapped from RawState
	ReceivedAt time.Time
	RawPayload json.RawMessage
}

// DedupKey is the idempotency key for at-most-once webhook effect.
func (e *ProviderEvent) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s", e.Provider, e.EventID, e.EventType)
}
