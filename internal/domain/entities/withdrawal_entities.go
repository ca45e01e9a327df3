package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the lifecycle status of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"    // Created, balance reserved
	WithdrawalStatusValidating WithdrawalStatus = "validating" // Under automated validation
	WithdrawalStatusApproved   WithdrawalStatus = "approved"   // Cleared for processing
	WithdrawalStatusQueued     WithdrawalStatus = "queued"     // Auto-eligible, waiting out the delay window
	WithdrawalStatusProcessing WithdrawalStatus = "processing" // Provider call in flight
	WithdrawalStatusSent       WithdrawalStatus = "sent"       // Accepted by the provider
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"  // Terminal: funds delivered
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"   // Terminal: declined by an admin
	WithdrawalStatusFailed     WithdrawalStatus = "failed"     // Provider failure; terminal once retries are exhausted
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"  // Terminal: cancelled by the user or provider
)

// ValidWithdrawalStatuses contains all valid withdrawal statuses.
var ValidWithdrawalStatuses = map[WithdrawalStatus]bool{
	WithdrawalStatusPending:    true,
	WithdrawalStatusValidating: true,
	WithdrawalStatusApproved:   true,
	WithdrawalStatusQueued:     true,
	WithdrawalStatusProcessing: true,
	WithdrawalStatusSent:       true,
	WithdrawalStatusCompleted:  true,
	WithdrawalStatusRejected:   true,
	WithdrawalStatusFailed:     true,
	WithdrawalStatusCancelled:  true,
}

// ValidWithdrawalTransitions defines allowed status transitions.
// "failed" is only re-enterable into processing while retries remain;
// that gate lives on the request (CanRetry), not in this table.
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:    {WithdrawalStatusValidating, WithdrawalStatusApproved, WithdrawalStatusQueued, WithdrawalStatusRejected, WithdrawalStatusCancelled},
	WithdrawalStatusValidating: {WithdrawalStatusApproved, WithdrawalStatusQueued, WithdrawalStatusRejected, WithdrawalStatusFailed},
	WithdrawalStatusApproved:   {WithdrawalStatusProcessing, WithdrawalStatusRejected},
	WithdrawalStatusQueued:     {WithdrawalStatusProcessing, WithdrawalStatusFailed},
	WithdrawalStatusProcessing: {WithdrawalStatusSent, WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusCancelled},
	WithdrawalStatusSent:       {WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusCancelled},
	WithdrawalStatusFailed:     {WithdrawalStatusProcessing},
	WithdrawalStatusCompleted:  {}, // Terminal
	WithdrawalStatusRejected:   {}, // Terminal
	WithdrawalStatusCancelled:  {}, // Terminal
}

// IsValid checks if the status is valid.
func (s WithdrawalStatus) IsValid() bool {
	return ValidWithdrawalStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed.
func (s WithdrawalStatus) CanTransitionTo(newStatus WithdrawalStatus) bool {
	allowed, exists := ValidWithdrawalTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is permitted from
// this status alone. "failed" is not listed here: whether it is
// terminal depends on the request's retry budget (see Withdrawal.IsFinal).
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusRejected || s == WithdrawalStatusCancelled
}

// ValidateTransition validates and returns an error if the transition is invalid.
func (s WithdrawalStatus) ValidateTransition(newStatus WithdrawalStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid withdrawal status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// Provider identifies a money-movement rail.
type Provider string

const (
	ProviderWise        Provider = "wise"        // Worldwide bank-transfer rail
	ProviderFlutterwave Provider = "flutterwave" // Mobile-money rail
)

// MethodType is the payout method requested by the user.
type MethodType string

const (
	MethodBankTransfer MethodType = "bank_transfer"
	MethodMobileMoney  MethodType = "mobile_money"
)

// UserType is the closed set of payee roles that can request withdrawals.
type UserType string

const (
	UserTypeProvider  UserType = "provider"
	UserTypeLawyer    UserType = "lawyer"
	UserTypeAffiliate UserType = "affiliate"
	UserTypeBlogger   UserType = "blogger"
)

// ValidUserTypes contains all payee roles.
var ValidUserTypes = map[UserType]bool{
	UserTypeProvider:  true,
	UserTypeLawyer:    true,
	UserTypeAffiliate: true,
	UserTypeBlogger:   true,
}

// HasCommissions reports whether the role carries upstream commission
// records that must be reverted when a withdrawal is refunded.
func (t UserType) HasCommissions() bool {
	return t == UserTypeAffiliate || t == UserTypeBlogger
}

// ActorType attributes a lifecycle transition to its originator.
type ActorType string

const (
	ActorTypeUser    ActorType = "user"
	ActorTypeAdmin   ActorType = "admin"
	ActorTypeSystem  ActorType = "system"
	ActorTypeWebhook ActorType = "webhook"
)

// BankAccountDetails holds bank-transfer destination fields.
type BankAccountDetails struct {
	AccountHolderName string `json:"account_holder_name"`
	IBAN              string `json:"iban,omitempty"`
	AccountNumber     string `json:"account_number,omitempty"`
	RoutingNumber     string `json:"routing_number,omitempty"`
	SwiftCode         string `json:"swift_code,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	Country           string `json:"country"`
}

// MobileMoneyDetails holds mobile-money destination fields.
type MobileMoneyDetails struct {
	PhoneNumber string `json:"phone_number"`
	Network     string `json:"network"` // e.g. MTN, AIRTEL, MPESA
	FullName    string `json:"full_name"`
	Country     string `json:"country"`
}

// PaymentDetails is the tagged union of destination details. Exactly
// one of the variant pointers is set, matching Method.
type PaymentDetails struct {
	Method      MethodType          `json:"method"`
	Bank        *BankAccountDetails `json:"bank,omitempty"`
	MobileMoney *MobileMoneyDetails `json:"mobile_money,omitempty"`
}

// Country returns the destination country of whichever variant is set.
func (d PaymentDetails) Country() string {
	switch d.Method {
	case MethodBankTransfer:
		if d.Bank != nil {
			return d.Bank.Country
		}
	case MethodMobileMoney:
		if d.MobileMoney != nil {
			return d.MobileMoney.Country
		}
	}
	return ""
}

// Validate checks the union is well-formed.
func (d PaymentDetails) Validate() error {
	switch d.Method {
	case MethodBankTransfer:
		if d.Bank == nil {
			return fmt.Errorf("bank details required for method %s", d.Method)
		}
		if d.Bank.Country == "" {
			return fmt.Errorf("bank account country is required")
		}
	case MethodMobileMoney:
		if d.MobileMoney == nil {
			return fmt.Errorf("mobile money details required for method %s", d.Method)
		}
		if d.MobileMoney.PhoneNumber == "" || d.MobileMoney.Country == "" {
			return fmt.Errorf("mobile money phone number and country are required")
		}
	default:
		return fmt.Errorf("unknown payout method: %s", d.Method)
	}
	return nil
}

// Value implements driver.Valuer for JSONB storage.
func (d PaymentDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *PaymentDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported type for PaymentDetails: %T", src)
	}
}

// Withdrawal is the central payout entity. Amounts are minor units of
// SourceCurrency; fees and exchange rate come back from the provider at
// transfer time and are recorded, never computed here.
type Withdrawal struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	UserType UserType  `json:"user_type" db:"user_type"`

	AmountMinor    int64            `json:"amount_minor" db:"amount_minor"`
	SourceCurrency string           `json:"source_currency" db:"source_currency"`
	TargetCurrency string           `json:"target_currency" db:"target_currency"`
	ExchangeRate   *decimal.Decimal `json:"exchange_rate,omitempty" db:"exchange_rate"`
	Fees           *decimal.Decimal `json:"fees,omitempty" db:"fees"`

	Provider        Provider       `json:"provider" db:"provider"`
	MethodType      MethodType     `json:"method_type" db:"method_type"`
	PaymentMethodID uuid.UUID      `json:"payment_method_id" db:"payment_method_id"`
	PaymentDetails  PaymentDetails `json:"payment_details" db:"payment_details"`

	Status               WithdrawalStatus `json:"status" db:"status"`
	RetryCount           int              `json:"retry_count" db:"retry_count"`
	MaxRetries           int              `json:"max_retries" db:"max_retries"`
	CanRetry             bool             `json:"can_retry" db:"can_retry"`
	NextRetryAt          *time.Time       `json:"next_retry_at,omitempty" db:"next_retry_at"`
	IsAutomatic          bool             `json:"is_automatic" db:"is_automatic"`
	ProcessAfter         *time.Time       `json:"process_after,omitempty" db:"process_after"`
	AwaitingConfirmation bool             `json:"awaiting_confirmation" db:"awaiting_confirmation"`
	FailureReason        *string          `json:"failure_reason,omitempty" db:"failure_reason"`

	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty" db:"provider_transaction_id"`
	ProviderStatus        *string         `json:"provider_status,omitempty" db:"provider_status"`
	ProviderResponse      json.RawMessage `json:"provider_response,omitempty" db:"provider_response"`
	LastWebhookAt         *time.Time      `json:"last_webhook_at,omitempty" db:"last_webhook_at"`

	RequestedAt time.Time  `json:"requested_at" db:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt    *time.Time `json:"failed_at,omitempty" db:"failed_at"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Reference returns the external reference attached to provider calls
// and matched against webhook payloads when the transaction id is absent.
func (w *Withdrawal) Reference() string {
	return "WD-" + w.ID.String()
}

// IsFinal reports whether the withdrawal can never transition again.
// A failed withdrawal is only final once its retry budget is spent.
func (w *Withdrawal) IsFinal() bool {
	if w.Status.IsTerminal() {
		return true
	}
	return w.Status == WithdrawalStatusFailed && (!w.CanRetry || w.RetryCount >= w.MaxRetries)
}

// StatusHistoryEntry is one append-only lifecycle record.
type StatusHistoryEntry struct {
	ID           int64            `json:"id" db:"id"`
	WithdrawalID uuid.UUID        `json:"withdrawal_id" db:"withdrawal_id"`
	Status       WithdrawalStatus `json:"status" db:"status"`
	Actor        string           `json:"actor" db:"actor"`
	ActorType    ActorType        `json:"actor_type" db:"actor_type"`
	Note         string           `json:"note,omitempty" db:"note"`
	Metadata     Metadata         `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// WithdrawalFilter narrows list queries.
type WithdrawalFilter struct {
	UserID   *uuid.UUID
	UserType *UserType
	Status   *WithdrawalStatus
	Provider *Provider
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// WithdrawalStats is the aggregate returned by the admin stats operation.
type WithdrawalStats struct {
	TotalCount      int64            `json:"total_count" db:"total_count"`
	TotalAmount     int64            `json:"total_amount_minor" db:"total_amount_minor"`
	CompletedCount  int64            `json:"completed_count" db:"completed_count"`
	CompletedAmount int64            `json:"completed_amount_minor" db:"completed_amount_minor"`
	FailedCount     int64            `json:"failed_count" db:"failed_count"`
	PendingCount    int64            `json:"pending_count" db:"pending_count"`
	RejectedCount   int64            `json:"rejected_count" db:"rejected_count"`
	TotalFees       *decimal.Decimal `json:"total_fees,omitempty" db:"total_fees"`
}
