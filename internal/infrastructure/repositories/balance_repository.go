package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// BalanceRepository reads user balances. All mutations happen inside
// the withdrawal transition transactions; nothing outside those may
// write balance rows.
type BalanceRepository struct {
	db *sqlx.DB
}

// NewBalanceRepository creates a new balance repository.
func NewBalanceRepository(db *sqlx.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Get returns the user's balance row. A missing row reads as a zero
// balance in the user's absence of any ledger credit.
func (r *BalanceRepository) Get(ctx context.Context, userID uuid.UUID) (*entities.UserBalance, error) {
	b := &entities.UserBalance{}
	err := r.db.GetContext(ctx, b, `
		SELECT user_id, available_balance_minor, pending_withdrawal_minor,
		       total_withdrawn_minor, withdrawal_count, currency, updated_at
		FROM user_balances
		WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return &entities.UserBalance{UserID: userID, Currency: "EUR"}, nil
	}
	return b, err
}
