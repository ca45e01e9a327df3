package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies an auditable event.
type AuditAction string

const (
	AuditActionWithdrawalRequested AuditAction = "withdrawal_requested"
	AuditActionWithdrawalApproved  AuditAction = "withdrawal_approved"
	AuditActionWithdrawalRejected  AuditAction = "withdrawal_rejected"
	AuditActionWithdrawalProcessed AuditAction = "withdrawal_processed"
	AuditActionWithdrawalSent      AuditAction = "withdrawal_sent"
	AuditActionWithdrawalCompleted AuditAction = "withdrawal_completed"
	AuditActionWithdrawalFailed    AuditAction = "withdrawal_failed"
	AuditActionWithdrawalCancelled AuditAction = "withdrawal_cancelled"
	AuditActionWithdrawalRefunded  AuditAction = "withdrawal_refunded"
	AuditActionStatusTransition    AuditAction = "status_transition"
	AuditActionWebhookReceived     AuditAction = "webhook_received"
	AuditActionSchedulerRun        AuditAction = "scheduler_run"
	AuditActionConfigUpdated       AuditAction = "payment_config_updated"
	AuditActionDataExport          AuditAction = "data_export"
	AuditActionAdminAlert          AuditAction = "admin_alert"
)

// Metadata is a JSONB payload attached to audit and history rows.
type Metadata map[string]interface{}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for Metadata: %T", src)
	}
}

// AuditLog is one append-only compliance record. Rows are never
// updated or deleted.
type AuditLog struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Action     AuditAction `json:"action" db:"action"`
	Actor      string     `json:"actor" db:"actor"`
	ActorType  ActorType  `json:"actor_type" db:"actor_type"`
	TargetID   *uuid.UUID `json:"target_id,omitempty" db:"target_id"`
	TargetType string     `json:"target_type" db:"target_type"`
	Detail     Metadata   `json:"detail,omitempty" db:"detail"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// AuditFilter narrows audit log queries.
type AuditFilter struct {
	Action    *AuditAction
	Actor     *string
	ActorType *ActorType
	TargetID  *uuid.UUID
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
