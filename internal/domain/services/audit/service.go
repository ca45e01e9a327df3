package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/repositories"
)

// Service appends compliance records. Failures to audit are logged but
// never fail the operation being audited.
type Service struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

func NewService(repo repositories.AuditRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) Log(ctx context.Context, action entities.AuditAction, actor string, actorType entities.ActorType, targetID *uuid.UUID, targetType string, detail entities.Metadata) {
	log := &entities.AuditLog{
		ID:         uuid.New(),
		Action:     action,
		Actor:      actor,
		ActorType:  actorType,
		TargetID:   targetID,
		TargetType: targetType,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Error("failed to create audit log",
			zap.Error(err),
			zap.String("action", string(action)),
			zap.String("actor", actor),
		)
		return
	}

	s.logger.Info("Audit log created",
		zap.String("action", string(action)),
		zap.String("actor", actor),
		zap.String("target_type", targetType),
	)
}

// LogWithdrawalAction records a lifecycle event against a withdrawal.
func (s *Service) LogWithdrawalAction(ctx context.Context, action entities.AuditAction, actor string, actorType entities.ActorType, withdrawalID uuid.UUID, detail entities.Metadata) {
	s.Log(ctx, action, actor, actorType, &withdrawalID, "withdrawal", detail)
}

// LogStatusTransition records a state change with both endpoints.
func (s *Service) LogStatusTransition(ctx context.Context, actor string, actorType entities.ActorType, withdrawalID uuid.UUID, from, to entities.WithdrawalStatus, note string) {
	detail := entities.Metadata{
		"from_status": string(from),
		"to_status":   string(to),
	}
	if note != "" {
		detail["note"] = note
	}
	s.Log(ctx, entities.AuditActionStatusTransition, actor, actorType, &withdrawalID, "withdrawal", detail)
}

// LogWebhookReceived records a provider delivery, accepted or not.
func (s *Service) LogWebhookReceived(ctx context.Context, provider entities.Provider, eventID, eventType, result string, withdrawalID *uuid.UUID) {
	s.Log(ctx, entities.AuditActionWebhookReceived, string(provider), entities.ActorTypeWebhook, withdrawalID, "webhook_event", entities.Metadata{
		"provider":   string(provider),
		"event_id":   eventID,
		"event_type": eventType,
		"result":     result,
	})
}

// LogSchedulerRun records one scheduler pass summary.
func (s *Service) LogSchedulerRun(ctx context.Context, picked, succeeded, failed, skipped int) {
	s.Log(ctx, entities.AuditActionSchedulerRun, "auto_payment_scheduler", entities.ActorTypeSystem, nil, "scheduler", entities.Metadata{
		"picked":    picked,
		"succeeded": succeeded,
		"failed":    failed,
		"skipped":   skipped,
	})
}

// LogConfigUpdate records a payment configuration change.
func (s *Service) LogConfigUpdate(ctx context.Context, admin string, before, after *entities.PaymentConfig) {
	s.Log(ctx, entities.AuditActionConfigUpdated, admin, entities.ActorTypeAdmin, nil, "payment_config", entities.Metadata{
		"before_mode": string(before.PaymentMode),
		"after_mode":  string(after.PaymentMode),
	})
}

func (s *Service) GetAuditLogs(ctx context.Context, filter entities.AuditFilter) ([]*entities.AuditLog, error) {
	return s.repo.List(ctx, filter)
}

// ExportJSON returns the matching audit records as indented JSON.
func (s *Service) ExportJSON(ctx context.Context, filter entities.AuditFilter) ([]byte, error) {
	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve audit logs: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit logs: %w", err)
	}

	return jsonBytes, nil
}

// ExportCSV returns the matching audit records as CSV with a header row.
func (s *Service) ExportCSV(ctx context.Context, filter entities.AuditFilter) ([]byte, error) {
	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve audit logs: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"id", "created_at", "action", "actor", "actor_type", "target_type", "target_id", "detail"}); err != nil {
		return nil, err
	}

	for _, log := range logs {
		targetID := ""
		if log.TargetID != nil {
			targetID = log.TargetID.String()
		}
		detail := ""
		if log.Detail != nil {
			raw, err := json.Marshal(log.Detail)
			if err != nil {
				return nil, err
			}
			detail = string(raw)
		}
		record := []string{
			log.ID.String(),
			log.CreatedAt.UTC().Format(time.RFC3339),
			string(log.Action),
			log.Actor,
			string(log.ActorType),
			log.TargetType,
			targetID,
			detail,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	s.Log(ctx, entities.AuditActionDataExport, "admin", entities.ActorTypeAdmin, nil, "audit_logs", entities.Metadata{
		"format": "csv",
		"rows":   strconv.Itoa(len(logs)),
	})

	return buf.Bytes(), nil
}
