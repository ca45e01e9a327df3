package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/repositories"
)

const withdrawalColumns = `
	id, user_id, user_type, amount_minor, source_currency, target_currency,
	exchange_rate, fees, provider, method_type, payment_method_id, payment_details,
	status, retry_count, max_retries, can_retry, next_retry_at, is_automatic,
	process_after, awaiting_confirmation, failure_reason, provider_transaction_id,
	provider_status, provider_response, last_webhook_at, requested_at, approved_at,
	processed_at, sent_at, completed_at, failed_at, rejected_at, cancelled_at,
	created_at, updated_at`

// statusTimestampColumns maps a target status to the timestamp column
// set when that state is entered. A timestamp column is written if and
// only if its state is entered.
var statusTimestampColumns = map[entities.WithdrawalStatus]string{
	entities.WithdrawalStatusApproved:   "approved_at",
	entities.WithdrawalStatusProcessing: "processed_at",
	entities.WithdrawalStatusSent:       "sent_at",
	entities.WithdrawalStatusCompleted:  "completed_at",
	entities.WithdrawalStatusFailed:     "failed_at",
	entities.WithdrawalStatusRejected:   "rejected_at",
	entities.WithdrawalStatusCancelled:  "cancelled_at",
}

// WithdrawalRepository persists withdrawal requests in Postgres.
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository.
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// CreateWithReservation inserts the withdrawal and reserves the amount
// on the user's balance in one serializable transaction. The reserve is
// an additive update guarded by the available-balance check, so
// concurrent withdrawals of the same user cannot overdraw.
func (r *WithdrawalRepository) CreateWithReservation(ctx context.Context, w *entities.Withdrawal) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE user_balances
		SET available_balance_minor = available_balance_minor - $1,
		    pending_withdrawal_minor = pending_withdrawal_minor + $1,
		    updated_at = now()
		WHERE user_id = $2 AND available_balance_minor >= $1`,
		w.AmountMinor, w.UserID)
	if err != nil {
		return fmt.Errorf("failed to reserve balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (
			id, user_id, user_type, amount_minor, source_currency, target_currency,
			provider, method_type, payment_method_id, payment_details, status,
			retry_count, max_retries, can_retry, is_automatic, process_after,
			awaiting_confirmation, requested_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, true, $13, $14, $15, $16, $16, $16)`,
		w.ID, w.UserID, w.UserType, w.AmountMinor, w.SourceCurrency, w.TargetCurrency,
		w.Provider, w.MethodType, w.PaymentMethodID, w.PaymentDetails, w.Status,
		w.MaxRetries, w.IsAutomatic, w.ProcessAfter, w.AwaitingConfirmation, w.RequestedAt)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}

	if w.UserType.HasCommissions() {
		_, err = tx.ExecContext(ctx, `
			UPDATE commissions
			SET status = 'paid', withdrawal_id = $1, updated_at = now()
			WHERE user_id = $2 AND status = 'available'`,
			w.ID, w.UserID)
		if err != nil {
			return fmt.Errorf("failed to mark commissions paid: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO withdrawal_status_history (withdrawal_id, status, actor, actor_type, note)
		VALUES ($1, $2, $3, $4, 'withdrawal requested')`,
		w.ID, w.Status, w.UserID.String(), entities.ActorTypeUser)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	return tx.Commit()
}

// GetByID retrieves a withdrawal by id.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	w := &entities.Withdrawal{}
	err := r.db.GetContext(ctx, w,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, entities.ErrWithdrawalNotFound
	}
	return w, err
}

// GetByProviderTransactionID retrieves a withdrawal by the provider's
// transfer id. Webhook ingestion looks up by this first.
func (r *WithdrawalRepository) GetByProviderTransactionID(ctx context.Context, provider entities.Provider, transactionID string) (*entities.Withdrawal, error) {
	w := &entities.Withdrawal{}
	err := r.db.GetContext(ctx, w,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		 WHERE provider = $1 AND provider_transaction_id = $2`, provider, transactionID)
	if err == sql.ErrNoRows {
		return nil, entities.ErrWithdrawalNotFound
	}
	return w, err
}

// GetByReference resolves an external reference back to the
// withdrawal. Fallback lookup when the webhook carries no transfer id
// we know. Two forms occur in the wild: "WD-<uuid>" as attached to
// provider calls, and "<uuid>-<attempt>" as echoed by rails that treat
// our idempotency key as the transfer reference.
func (r *WithdrawalRepository) GetByReference(ctx context.Context, reference string) (*entities.Withdrawal, error) {
	raw := strings.TrimPrefix(reference, "WD-")
	if len(raw) > 36 {
		raw = raw[:36]
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, entities.ErrWithdrawalNotFound
	}
	return r.GetByID(ctx, id)
}

// List returns withdrawals matching the filter, newest first.
func (r *WithdrawalRepository) List(ctx context.Context, filter entities.WithdrawalFilter) ([]*entities.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE 1=1`
	args := []interface{}{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}

	if filter.UserID != nil {
		add(" AND user_id = $%d", *filter.UserID)
	}
	if filter.UserType != nil {
		add(" AND user_type = $%d", *filter.UserType)
	}
	if filter.Status != nil {
		add(" AND status = $%d", *filter.Status)
	}
	if filter.Provider != nil {
		add(" AND provider = $%d", *filter.Provider)
	}
	if filter.From != nil {
		add(" AND created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add(" AND created_at < $%d", *filter.To)
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	add(" LIMIT $%d", limit)
	if filter.Offset > 0 {
		add(" OFFSET $%d", filter.Offset)
	}

	var out []*entities.Withdrawal
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAutoEligible returns the bounded batch of withdrawals the
// scheduler may drive unattended on this tick.
func (r *WithdrawalRepository) ListAutoEligible(ctx context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error) {
	var out []*entities.Withdrawal
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status IN ('queued', 'approved')
		  AND is_automatic = true
		  AND awaiting_confirmation = false
		  AND (process_after IS NULL OR process_after <= $1)
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY requested_at ASC
		LIMIT $2`, now, limit)
	return out, err
}

// ListRetryable returns failed withdrawals with retry budget left whose
// retry backoff has elapsed.
func (r *WithdrawalRepository) ListRetryable(ctx context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error) {
	var out []*entities.Withdrawal
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = 'failed'
		  AND can_retry = true
		  AND retry_count < max_retries
		  AND awaiting_confirmation = false
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY next_retry_at ASC NULLS FIRST
		LIMIT $2`, now, limit)
	return out, err
}

// Transition performs one atomic lifecycle transition: a status
// compare-and-swap, the history append, and any ledger side effects in
// a single serializable transaction. The persisted status field is the
// lease; a losing racer gets entities.ErrStatusConflict and nothing is
// written.
func (r *WithdrawalRepository) Transition(ctx context.Context, p repositories.TransitionParams) (*entities.Withdrawal, error) {
	if len(p.From) == 0 {
		return nil, fmt.Errorf("transition requires at least one expected status")
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sets := []string{"status = ?", "updated_at = now()"}
	args := []interface{}{p.To}

	if col, ok := statusTimestampColumns[p.To]; ok {
		sets = append(sets, col+" = now()")
	}
	if p.ProviderTransactionID != nil {
		sets = append(sets, "provider_transaction_id = ?")
		args = append(args, *p.ProviderTransactionID)
	}
	if p.ProviderStatus != nil {
		sets = append(sets, "provider_status = ?")
		args = append(args, *p.ProviderStatus)
	}
	if p.ProviderResponse != nil {
		sets = append(sets, "provider_response = ?")
		args = append(args, []byte(p.ProviderResponse))
	}
	if p.ExchangeRate != nil {
		sets = append(sets, "exchange_rate = ?")
		args = append(args, *p.ExchangeRate)
	}
	if p.Fees != nil {
		sets = append(sets, "fees = ?")
		args = append(args, *p.Fees)
	}
	if p.LastWebhookAt != nil {
		sets = append(sets, "last_webhook_at = ?")
		args = append(args, *p.LastWebhookAt)
	}
	if p.FailureReason != nil {
		sets = append(sets, "failure_reason = ?")
		args = append(args, *p.FailureReason)
	}
	if p.IncrementRetry {
		sets = append(sets, "retry_count = retry_count + 1")
	}
	if p.NextRetryAt != nil {
		sets = append(sets, "next_retry_at = ?")
		args = append(args, *p.NextRetryAt)
	} else if p.ClearNextRetry {
		sets = append(sets, "next_retry_at = NULL")
	}
	if p.SetCanRetry != nil {
		sets = append(sets, "can_retry = ?")
		args = append(args, *p.SetCanRetry)
	}
	if p.SetProcessAfter != nil {
		sets = append(sets, "process_after = ?")
		args = append(args, *p.SetProcessAfter)
	}

	args = append(args, p.ID, pq.Array(statusStrings(p.From)))
	query := r.db.Rebind(fmt.Sprintf(`
		UPDATE withdrawal_requests SET %s
		WHERE id = ? AND status = ANY(?)
		RETURNING %s`, strings.Join(sets, ", "), withdrawalColumns))

	w := &entities.Withdrawal{}
	err = tx.QueryRowxContext(ctx, query, args...).StructScan(w)
	if err == sql.ErrNoRows {
		// CAS lost: distinguish "gone" from "already moved" for the caller.
		var exists bool
		if chkErr := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM withdrawal_requests WHERE id = $1)`, p.ID).Scan(&exists); chkErr == nil && !exists {
			return nil, entities.ErrWithdrawalNotFound
		}
		return nil, entities.ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO withdrawal_status_history (withdrawal_id, status, actor, actor_type, note, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.To, p.Actor, p.ActorType, p.Note, p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to append status history: %w", err)
	}

	if p.RefundBalance {
		if err := refundBalanceTx(ctx, tx, w); err != nil {
			return nil, err
		}
	}
	if p.CommitStats {
		_, err = tx.ExecContext(ctx, `
			UPDATE user_balances
			SET pending_withdrawal_minor = pending_withdrawal_minor - $1,
			    total_withdrawn_minor = total_withdrawn_minor + $1,
			    withdrawal_count = withdrawal_count + 1,
			    updated_at = now()
			WHERE user_id = $2`, w.AmountMinor, w.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to commit withdrawal stats: %w", err)
		}
	}
	if p.ReverseStats {
		if err := reverseStatsTx(ctx, tx, w); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return w, nil
}

// refundBalanceTx restores the reserved amount and releases any
// commissions tied to the withdrawal. Additive updates only.
func refundBalanceTx(ctx context.Context, tx *sqlx.Tx, w *entities.Withdrawal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_balances
		SET available_balance_minor = available_balance_minor + $1,
		    pending_withdrawal_minor = pending_withdrawal_minor - $1,
		    updated_at = now()
		WHERE user_id = $2`, w.AmountMinor, w.UserID)
	if err != nil {
		return fmt.Errorf("failed to refund balance: %w", err)
	}

	if w.UserType.HasCommissions() {
		_, err = tx.ExecContext(ctx, `
			UPDATE commissions
			SET status = 'available', withdrawal_id = NULL, updated_at = now()
			WHERE withdrawal_id = $1 AND status = 'paid'`, w.ID)
		if err != nil {
			return fmt.Errorf("failed to revert commissions: %w", err)
		}
	}
	return nil
}

// reverseStatsTx unwinds the stats committed when the withdrawal was
// handed to the provider. pending_withdrawal_minor was already released
// at that point, so only available and the lifetime totals move here.
func reverseStatsTx(ctx context.Context, tx *sqlx.Tx, w *entities.Withdrawal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_balances
		SET available_balance_minor = available_balance_minor + $1,
		    total_withdrawn_minor = total_withdrawn_minor - $1,
		    withdrawal_count = withdrawal_count - 1,
		    updated_at = now()
		WHERE user_id = $2`, w.AmountMinor, w.UserID)
	if err != nil {
		return fmt.Errorf("failed to reverse withdrawal stats: %w", err)
	}

	if w.UserType.HasCommissions() {
		_, err = tx.ExecContext(ctx, `
			UPDATE commissions
			SET status = 'available', withdrawal_id = NULL, updated_at = now()
			WHERE withdrawal_id = $1 AND status = 'paid'`, w.ID)
		if err != nil {
			return fmt.Errorf("failed to revert commissions: %w", err)
		}
	}
	return nil
}

// GetStatusHistory returns the append-only history, oldest first.
func (r *WithdrawalRepository) GetStatusHistory(ctx context.Context, withdrawalID uuid.UUID) ([]*entities.StatusHistoryEntry, error) {
	var out []*entities.StatusHistoryEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, withdrawal_id, status, actor, actor_type, note, metadata, created_at
		FROM withdrawal_status_history
		WHERE withdrawal_id = $1
		ORDER BY id ASC`, withdrawalID)
	return out, err
}

// GetStats aggregates withdrawals for the admin stats operation.
func (r *WithdrawalRepository) GetStats(ctx context.Context, from, to time.Time) (*entities.WithdrawalStats, error) {
	stats := &entities.WithdrawalStats{}
	err := r.db.GetContext(ctx, stats, `
		SELECT
			COUNT(*) AS total_count,
			COALESCE(SUM(amount_minor), 0) AS total_amount_minor,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_count,
			COALESCE(SUM(amount_minor) FILTER (WHERE status = 'completed'), 0) AS completed_amount_minor,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed_count,
			COUNT(*) FILTER (WHERE status IN ('pending', 'validating', 'approved', 'queued', 'processing', 'sent')) AS pending_count,
			COUNT(*) FILTER (WHERE status = 'rejected') AS rejected_count,
			SUM(fees) AS total_fees
		FROM withdrawal_requests
		WHERE created_at >= $1 AND created_at < $2`, from, to)
	return stats, err
}

// SumSince totals requested amounts for limit checks, ignoring requests
// whose reservation was released.
func (r *WithdrawalRepository) SumSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM withdrawal_requests
		WHERE user_id = $1 AND created_at >= $2
		  AND status NOT IN ('rejected', 'cancelled')`, userID, since).Scan(&total)
	return total, err
}

// SetAwaitingConfirmation flips the out-of-band confirmation gate.
func (r *WithdrawalRepository) SetAwaitingConfirmation(ctx context.Context, id uuid.UUID, awaiting bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE withdrawal_requests SET awaiting_confirmation = $1, updated_at = now() WHERE id = $2`,
		awaiting, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrWithdrawalNotFound
	}
	return nil
}

func statusStrings(in []entities.WithdrawalStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
