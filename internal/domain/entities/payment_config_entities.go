package entities

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PaymentMode controls how withdrawals are driven to the providers.
type PaymentMode string

const (
	PaymentModeManual    PaymentMode = "manual"    // Admin triggers every provider call
	PaymentModeAutomatic PaymentMode = "automatic" // Scheduler drives everything under the threshold
	PaymentModeHybrid    PaymentMode = "hybrid"    // Scheduler below threshold, admin above
)

// PaymentConfig is the operator-controlled singleton. It is re-read on
// every lifecycle decision so a flag flip takes effect on the next
// transition of any in-flight withdrawal.
type PaymentConfig struct {
	ID                        int            `json:"-" db:"id"`
	PaymentMode               PaymentMode    `json:"payment_mode" db:"payment_mode"`
	AutoPaymentThresholdMinor int64          `json:"auto_payment_threshold_minor" db:"auto_payment_threshold_minor"`
	MinWithdrawalMinor        int64          `json:"min_withdrawal_minor" db:"min_withdrawal_minor"`
	MaxWithdrawalMinor        int64          `json:"max_withdrawal_minor" db:"max_withdrawal_minor"`
	DailyLimitMinor           int64          `json:"daily_limit_minor" db:"daily_limit_minor"`
	MonthlyLimitMinor         int64          `json:"monthly_limit_minor" db:"monthly_limit_minor"`
	AutoPaymentDelayHours     int            `json:"auto_payment_delay_hours" db:"auto_payment_delay_hours"`
	MaxRetries                int            `json:"max_retries" db:"max_retries"`
	RetryDelayMinutes         int            `json:"retry_delay_minutes" db:"retry_delay_minutes"`
	WiseEnabled               bool           `json:"wise_enabled" db:"wise_enabled"`
	FlutterwaveEnabled        bool           `json:"flutterwave_enabled" db:"flutterwave_enabled"`
	NotifyAdminsOnFailure     bool           `json:"notify_admins_on_failure" db:"notify_admins_on_failure"`
	AdminEmails               pq.StringArray `json:"admin_emails" db:"admin_emails"`
	UpdatedBy                 string         `json:"updated_by" db:"updated_by"`
	UpdatedAt                 time.Time      `json:"updated_at" db:"updated_at"`
}

// ProviderEnabled reports whether the given rail is switched on.
func (c *PaymentConfig) ProviderEnabled(p Provider) bool {
	switch p {
	case ProviderWise:
		return c.WiseEnabled
	case ProviderFlutterwave:
		return c.FlutterwaveEnabled
	default:
		return false
	}
}

// AutoEligible reports whether a withdrawal of the given amount may be
// processed without an admin under the current mode.
func (c *PaymentConfig) AutoEligible(amountMinor int64) bool {
	switch c.PaymentMode {
	case PaymentModeAutomatic:
		return true
	case PaymentModeHybrid:
		return amountMinor <= c.AutoPaymentThresholdMinor
	default:
		return false
	}
}

// Validate rejects inconsistent operator input.
func (c *PaymentConfig) Validate() error {
	switch c.PaymentMode {
	case PaymentModeManual, PaymentModeAutomatic, PaymentModeHybrid:
	default:
		return fmt.Errorf("invalid payment mode: %s", c.PaymentMode)
	}
	if c.MinWithdrawalMinor < 0 || c.MaxWithdrawalMinor < c.MinWithdrawalMinor {
		return fmt.Errorf("invalid withdrawal bounds: min=%d max=%d", c.MinWithdrawalMinor, c.MaxWithdrawalMinor)
	}
	if c.MaxRetries < 0 || c.RetryDelayMinutes < 0 || c.AutoPaymentDelayHours < 0 {
		return fmt.Errorf("retry and delay settings must be non-negative")
	}
	return nil
}
