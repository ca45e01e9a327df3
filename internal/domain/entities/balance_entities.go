package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserBalance tracks a user's withdrawable funds in minor units. The
// ledger accessor is the only writer; every mutation is additive so
// concurrent withdrawals of the same user compose.
type UserBalance struct {
	UserID                 uuid.UUID `json:"user_id" db:"user_id"`
	AvailableBalanceMinor  int64     `json:"available_balance_minor" db:"available_balance_minor"`
	PendingWithdrawalMinor int64     `json:"pending_withdrawal_minor" db:"pending_withdrawal_minor"`
	TotalWithdrawnMinor    int64     `json:"total_withdrawn_minor" db:"total_withdrawn_minor"`
	WithdrawalCount        int       `json:"withdrawal_count" db:"withdrawal_count"`
	Currency               string    `json:"currency" db:"currency"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// CommissionStatus is the settlement state of an upstream commission record.
type CommissionStatus string

const (
	CommissionStatusAvailable CommissionStatus = "available" // Withdrawable
	CommissionStatusPaid      CommissionStatus = "paid"      // Tied to an in-flight or settled withdrawal
	CommissionStatusReverted  CommissionStatus = "reverted"  // Released back after a refund
)

// Commission is an upstream ledger credit. The engine never computes
// commission amounts; it only flips paid records back to available when
// a withdrawal is refunded.
type Commission struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	UserID       uuid.UUID        `json:"user_id" db:"user_id"`
	WithdrawalID *uuid.UUID       `json:"withdrawal_id,omitempty" db:"withdrawal_id"`
	AmountMinor  int64            `json:"amount_minor" db:"amount_minor"`
	Status       CommissionStatus `json:"status" db:"status"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// FormatMinor renders minor units as a display amount, e.g. 1050 -> "10.50".
func FormatMinor(amount int64) string {
	units := amount / 100
	cents := amount % 100
	if cents < 0 {
		cents = -cents
	}
	return fmt.Sprintf("%d.%02d", units, cents)
}
