// Package repositories declares the persistence interfaces consumed by
// the domain services. Implementations live in
// internal/infrastructure/repositories.
package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// TransitionParams describes one atomic lifecycle transition. The
// implementation performs the status compare-and-swap, the history
// append, and any ledger side effects inside a single serializable
// transaction; if the current status is not in From it returns
// entities.ErrStatusConflict and nothing is written.
type TransitionParams struct {
	ID   uuid.UUID
	From []entities.WithdrawalStatus
	To   entities.WithdrawalStatus

	Actor     string
	ActorType entities.ActorType
	Note      string
	Metadata  entities.Metadata

	// Provider correlation updates, applied when non-nil.
	ProviderTransactionID *string
	ProviderStatus        *string
	ProviderResponse      json.RawMessage
	ExchangeRate          *decimal.Decimal
	Fees                  *decimal.Decimal
	LastWebhookAt         *time.Time
	FailureReason         *string

	// Retry bookkeeping.
	IncrementRetry  bool
	NextRetryAt     *time.Time
	ClearNextRetry  bool
	SetCanRetry     *bool
	SetProcessAfter *time.Time

	// Ledger side effects, executed in the same transaction.
	// RefundBalance credits available, releases pending and reverts any
	// paid commissions tied to the withdrawal. CommitStats moves pending
	// into the lifetime totals on successful delivery. ReverseStats
	// undoes a prior CommitStats when a provider reports a failure after
	// delivery: available is re-credited and the lifetime totals roll
	// back, but pending is untouched because CommitStats already
	// released it.
	RefundBalance bool
	CommitStats   bool
	ReverseStats  bool
}

// WithdrawalRepository persists withdrawal requests and owns the
// transition transaction.
type WithdrawalRepository interface {
	// CreateWithReservation inserts the withdrawal, debits the user's
	// available balance into pending, marks commissions paid for roles
	// that carry them, and appends the initial history row, atomically.
	CreateWithReservation(ctx context.Context, w *entities.Withdrawal) error

	GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error)
	GetByProviderTransactionID(ctx context.Context, provider entities.Provider, transactionID string) (*entities.Withdrawal, error)
	GetByReference(ctx context.Context, reference string) (*entities.Withdrawal, error)
	List(ctx context.Context, filter entities.WithdrawalFilter) ([]*entities.Withdrawal, error)

	// ListAutoEligible returns the bounded batch the scheduler drives:
	// queued/approved automatic items whose delay has elapsed, whose
	// next retry is due, and which are not awaiting out-of-band
	// confirmation.
	ListAutoEligible(ctx context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error)

	// ListRetryable returns failed items with retry budget left whose
	// next_retry_at is due.
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error)

	Transition(ctx context.Context, params TransitionParams) (*entities.Withdrawal, error)

	GetStatusHistory(ctx context.Context, withdrawalID uuid.UUID) ([]*entities.StatusHistoryEntry, error)
	GetStats(ctx context.Context, from, to time.Time) (*entities.WithdrawalStats, error)

	// SumSince returns the total requested amount for a user since the
	// given time, excluding rejected/cancelled requests. Used for
	// daily/monthly limit checks.
	SumSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)

	SetAwaitingConfirmation(ctx context.Context, id uuid.UUID, awaiting bool) error
}

// BalanceRepository is the ledger accessor, the only component allowed
// to mutate user balances.
type BalanceRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*entities.UserBalance, error)
}

// PaymentConfigRepository reads and writes the operator config
// singleton. Get is called on every decision, never cached.
type PaymentConfigRepository interface {
	Get(ctx context.Context) (*entities.PaymentConfig, error)
	Update(ctx context.Context, cfg *entities.PaymentConfig) error
}

// AuditRepository appends compliance records.
type AuditRepository interface {
	Create(ctx context.Context, log *entities.AuditLog) error
	List(ctx context.Context, filter entities.AuditFilter) ([]*entities.AuditLog, error)
}

// WebhookEventStore is the idempotency gate for provider deliveries.
type WebhookEventStore interface {
	// MarkProcessed atomically records the event key. It returns true if
	// the key already existed, meaning the event was handled before.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (alreadyProcessed bool, err error)

	// Release drops a claimed key so a provider redelivery can apply the
	// event after a processing failure.
	Release(ctx context.Context, key string) error
}
