package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// PaymentConfigRepository stores the operator config singleton.
type PaymentConfigRepository struct {
	db *sqlx.DB
}

// NewPaymentConfigRepository creates a new payment config repository.
func NewPaymentConfigRepository(db *sqlx.DB) *PaymentConfigRepository {
	return &PaymentConfigRepository{db: db}
}

// Get reads the current config. Callers fetch it once per external
// trigger (request, tick, webhook) and never cache it process-wide, so
// an operator flag flip takes effect on the next decision.
func (r *PaymentConfigRepository) Get(ctx context.Context) (*entities.PaymentConfig, error) {
	cfg := &entities.PaymentConfig{}
	err := r.db.GetContext(ctx, cfg, `
		SELECT id, payment_mode, auto_payment_threshold_minor, min_withdrawal_minor,
		       max_withdrawal_minor, daily_limit_minor, monthly_limit_minor,
		       auto_payment_delay_hours, max_retries, retry_delay_minutes,
		       wise_enabled, flutterwave_enabled, notify_admins_on_failure,
		       admin_emails, updated_by, updated_at
		FROM payment_config
		WHERE id = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment config: %w", err)
	}
	return cfg, nil
}

// Update replaces the singleton row.
func (r *PaymentConfigRepository) Update(ctx context.Context, cfg *entities.PaymentConfig) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_config SET
			payment_mode = $1,
			auto_payment_threshold_minor = $2,
			min_withdrawal_minor = $3,
			max_withdrawal_minor = $4,
			daily_limit_minor = $5,
			monthly_limit_minor = $6,
			auto_payment_delay_hours = $7,
			max_retries = $8,
			retry_delay_minutes = $9,
			wise_enabled = $10,
			flutterwave_enabled = $11,
			notify_admins_on_failure = $12,
			admin_emails = $13,
			updated_by = $14,
			updated_at = now()
		WHERE id = 1`,
		cfg.PaymentMode, cfg.AutoPaymentThresholdMinor, cfg.MinWithdrawalMinor,
		cfg.MaxWithdrawalMinor, cfg.DailyLimitMinor, cfg.MonthlyLimitMinor,
		cfg.AutoPaymentDelayHours, cfg.MaxRetries, cfg.RetryDelayMinutes,
		cfg.WiseEnabled, cfg.FlutterwaveEnabled, cfg.NotifyAdminsOnFailure,
		cfg.AdminEmails, cfg.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to update payment config: %w", err)
	}
	return nil
}
