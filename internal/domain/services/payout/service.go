// Package payout implements the withdrawal lifecycle: request intake,
// admin review, provider dispatch, retry bookkeeping and webhook
// settlement. All state changes go through the repository transition
// transaction; this package decides which transition to ask for.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/repositories"
	"github.com/payout-service/payout_service/internal/pkg/util"
	"github.com/payout-service/payout_service/pkg/circuitbreaker"
	"github.com/payout-service/payout_service/pkg/logger"
	"github.com/payout-service/payout_service/pkg/metrics"
)

// PaymentProcessor is the uniform adapter surface. A transport error is
// returned as err; a provider-side rejection comes back as a result
// with Success=false.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req *entities.PaymentRequest) (*entities.PaymentResult, error)
}

// AuditService is the compliance trail consumed by the payout service.
type AuditService interface {
	LogWithdrawalAction(ctx context.Context, action entities.AuditAction, actor string, actorType entities.ActorType, withdrawalID uuid.UUID, detail entities.Metadata)
	LogStatusTransition(ctx context.Context, actor string, actorType entities.ActorType, withdrawalID uuid.UUID, from, to entities.WithdrawalStatus, note string)
	LogWebhookReceived(ctx context.Context, provider entities.Provider, eventID, eventType, result string, withdrawalID *uuid.UUID)
}

// AlertService notifies admins about events that need human attention.
type AlertService interface {
	SendWithdrawalFailedAlert(ctx context.Context, recipients []string, w *entities.Withdrawal, reason string) error
	SendLargeWithdrawalAlert(ctx context.Context, recipients []string, w *entities.Withdrawal) error
}

// Service orchestrates the withdrawal lifecycle.
type Service struct {
	withdrawalRepo repositories.WithdrawalRepository
	balanceRepo    repositories.BalanceRepository
	configRepo     repositories.PaymentConfigRepository
	eventStore     repositories.WebhookEventStore
	router         *Router
	processors     map[entities.Provider]PaymentProcessor
	breakers       map[entities.Provider]*circuitbreaker.CircuitBreaker
	auditService   AuditService
	alertService   AlertService
	logger         *logger.Logger

	webhookEventTTL time.Duration
}

// NewService creates the payout service. One circuit breaker is created
// per registered provider so a broken rail does not trip the other.
func NewService(
	withdrawalRepo repositories.WithdrawalRepository,
	balanceRepo repositories.BalanceRepository,
	configRepo repositories.PaymentConfigRepository,
	eventStore repositories.WebhookEventStore,
	processors map[entities.Provider]PaymentProcessor,
	auditService AuditService,
	alertService AlertService,
	log *logger.Logger,
	webhookEventTTL time.Duration,
) *Service {
	breakers := make(map[entities.Provider]*circuitbreaker.CircuitBreaker, len(processors))
	for provider := range processors {
		breakers[provider] = circuitbreaker.New(circuitbreaker.DefaultConfig(string(provider)))
	}
	if webhookEventTTL <= 0 {
		webhookEventTTL = 72 * time.Hour
	}
	return &Service{
		withdrawalRepo:  withdrawalRepo,
		balanceRepo:     balanceRepo,
		configRepo:      configRepo,
		eventStore:      eventStore,
		router:          NewRouter(),
		processors:      processors,
		breakers:        breakers,
		auditService:    auditService,
		alertService:    alertService,
		logger:          log,
		webhookEventTTL: webhookEventTTL,
	}
}

// CreateWithdrawalParams is the intake request.
type CreateWithdrawalParams struct {
	UserID          uuid.UUID
	UserType        entities.UserType
	AmountMinor     int64
	SourceCurrency  string
	TargetCurrency  string
	PaymentMethodID uuid.UUID
	PaymentDetails  entities.PaymentDetails
}

// CreateWithdrawal validates the request, routes it to a provider,
// reserves the amount from the user's balance and persists the new
// withdrawal. Nothing is written when validation or routing fails.
func (s *Service) CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*entities.Withdrawal, error) {
	if !entities.ValidUserTypes[params.UserType] {
		return nil, fmt.Errorf("unknown user type: %s", params.UserType)
	}
	if err := params.PaymentDetails.Validate(); err != nil {
		return nil, err
	}

	cfg, err := s.configRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment config: %w", err)
	}

	if params.AmountMinor < cfg.MinWithdrawalMinor || params.AmountMinor > cfg.MaxWithdrawalMinor {
		return nil, entities.ErrAmountOutOfBounds
	}

	if err := s.checkPeriodLimits(ctx, params.UserID, params.AmountMinor, cfg); err != nil {
		return nil, err
	}

	provider, err := s.router.Route(params.PaymentDetails, cfg)
	if err != nil {
		s.logger.Warn("Withdrawal routing failed",
			"user_id", params.UserID.String(),
			"country", params.PaymentDetails.Country(),
			"method", string(params.PaymentDetails.Method),
			"error", err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	auto := cfg.AutoEligible(params.AmountMinor)

	w := &entities.Withdrawal{
		ID:              uuid.New(),
		UserID:          params.UserID,
		UserType:        params.UserType,
		AmountMinor:     params.AmountMinor,
		SourceCurrency:  params.SourceCurrency,
		TargetCurrency:  params.TargetCurrency,
		Provider:        provider,
		MethodType:      params.PaymentDetails.Method,
		PaymentMethodID: params.PaymentMethodID,
		PaymentDetails:  params.PaymentDetails,
		Status:          entities.WithdrawalStatusPending,
		MaxRetries:      cfg.MaxRetries,
		CanRetry:        true,
		IsAutomatic:     auto,
		RequestedAt:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if auto {
		w.Status = entities.WithdrawalStatusQueued
		processAfter := now.Add(time.Duration(cfg.AutoPaymentDelayHours) * time.Hour)
		w.ProcessAfter = &processAfter

		// In automatic mode every amount is auto-eligible, so the
		// threshold acts as a confirmation gate instead: above it the
		// payout holds until an admin confirms, and the scheduler skips
		// it meanwhile.
		if cfg.PaymentMode == entities.PaymentModeAutomatic &&
			cfg.AutoPaymentThresholdMinor > 0 &&
			params.AmountMinor > cfg.AutoPaymentThresholdMinor {
			w.AwaitingConfirmation = true
		}
	}

	if err := s.withdrawalRepo.CreateWithReservation(ctx, w); err != nil {
		s.logger.Error("Failed to create withdrawal",
			"user_id", params.UserID.String(),
			"amount_minor", params.AmountMinor,
			"error", err)
		return nil, err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(w.Status), string(entities.ActorTypeUser)).Inc()
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalRequested, params.UserID.String(), entities.ActorTypeUser, w.ID, entities.Metadata{
		"amount_minor": w.AmountMinor,
		"currency":     w.SourceCurrency,
		"provider":     string(w.Provider),
		"method":       string(w.MethodType),
		"automatic":    auto,
	})

	// Payouts above the automatic threshold wait for an admin, either
	// in pending (hybrid mode) or under a confirmation hold (automatic
	// mode). Tell the admins one is waiting.
	needsReview := (!auto || w.AwaitingConfirmation) && cfg.PaymentMode != entities.PaymentModeManual
	if needsReview && len(cfg.AdminEmails) > 0 {
		if err := s.alertService.SendLargeWithdrawalAlert(ctx, cfg.AdminEmails, w); err != nil {
			s.logger.Warn("Failed to send review alert", "withdrawal_id", w.ID.String(), "error", err)
		}
	}

	s.logger.Info("Withdrawal created",
		"withdrawal_id", w.ID.String(),
		"reference", w.Reference(),
		"status", string(w.Status),
		"provider", string(w.Provider),
		"destination", util.Redact(destinationIdentifier(params.PaymentDetails)))

	return w, nil
}

// destinationIdentifier returns the external account the money is
// going to, for hashed log correlation.
func destinationIdentifier(d entities.PaymentDetails) string {
	switch d.Method {
	case entities.MethodBankTransfer:
		if d.Bank == nil {
			return ""
		}
		if d.Bank.IBAN != "" {
			return d.Bank.IBAN
		}
		return d.Bank.AccountNumber
	case entities.MethodMobileMoney:
		if d.MobileMoney == nil {
			return ""
		}
		return d.MobileMoney.PhoneNumber
	}
	return ""
}

// checkPeriodLimits enforces the configured daily and monthly caps on
// the sum of a user's non-rejected requests.
func (s *Service) checkPeriodLimits(ctx context.Context, userID uuid.UUID, amountMinor int64, cfg *entities.PaymentConfig) error {
	now := time.Now().UTC()

	if cfg.DailyLimitMinor > 0 {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		used, err := s.withdrawalRepo.SumSince(ctx, userID, dayStart)
		if err != nil {
			return fmt.Errorf("failed to check daily limit: %w", err)
		}
		if used+amountMinor > cfg.DailyLimitMinor {
			return entities.ErrDailyLimitExceeded
		}
	}

	if cfg.MonthlyLimitMinor > 0 {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		used, err := s.withdrawalRepo.SumSince(ctx, userID, monthStart)
		if err != nil {
			return fmt.Errorf("failed to check monthly limit: %w", err)
		}
		if used+amountMinor > cfg.MonthlyLimitMinor {
			return entities.ErrMonthlyLimitExceeded
		}
	}

	return nil
}

// GetWithdrawal returns a withdrawal, enforcing ownership when a
// non-admin caller id is given.
func (s *Service) GetWithdrawal(ctx context.Context, id uuid.UUID, callerID *uuid.UUID) (*entities.Withdrawal, error) {
	w, err := s.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID != nil && w.UserID != *callerID {
		return nil, entities.ErrWithdrawalNotFound
	}
	return w, nil
}

// GetStatusHistory returns the append-only lifecycle trail.
func (s *Service) GetStatusHistory(ctx context.Context, id uuid.UUID, callerID *uuid.UUID) ([]*entities.StatusHistoryEntry, error) {
	if _, err := s.GetWithdrawal(ctx, id, callerID); err != nil {
		return nil, err
	}
	return s.withdrawalRepo.GetStatusHistory(ctx, id)
}

// ListWithdrawals returns withdrawals matching the filter.
func (s *Service) ListWithdrawals(ctx context.Context, filter entities.WithdrawalFilter) ([]*entities.Withdrawal, error) {
	return s.withdrawalRepo.List(ctx, filter)
}

// GetBalance returns the caller's withdrawable balance.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*entities.UserBalance, error) {
	return s.balanceRepo.Get(ctx, userID)
}

// GetStats returns the admin aggregate for the period.
func (s *Service) GetStats(ctx context.Context, from, to time.Time) (*entities.WithdrawalStats, error) {
	return s.withdrawalRepo.GetStats(ctx, from, to)
}

// CancelWithdrawal cancels a pending withdrawal and refunds the
// reservation. Anything past pending is already committed to review or
// to a provider and cannot be pulled back by the user.
func (s *Service) CancelWithdrawal(ctx context.Context, id, userID uuid.UUID) (*entities.Withdrawal, error) {
	current, err := s.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID != userID {
		return nil, entities.ErrWithdrawalNotFound
	}
	if current.Status != entities.WithdrawalStatusPending {
		return nil, entities.ErrNotCancellable
	}

	w, err := s.withdrawalRepo.Transition(ctx, repositories.TransitionParams{
		ID:            id,
		From:          []entities.WithdrawalStatus{entities.WithdrawalStatusPending},
		To:            entities.WithdrawalStatusCancelled,
		Actor:         userID.String(),
		ActorType:     entities.ActorTypeUser,
		Note:          "cancelled by user",
		RefundBalance: true,
	})
	if err != nil {
		if errors.Is(err, entities.ErrStatusConflict) {
			return nil, entities.ErrNotCancellable
		}
		return nil, err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusCancelled), string(entities.ActorTypeUser)).Inc()
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalCancelled, userID.String(), entities.ActorTypeUser, id, entities.Metadata{
		"refunded_minor": w.AmountMinor,
	})

	s.logger.Info("Withdrawal cancelled", "withdrawal_id", id.String())
	return w, nil
}

// ApproveWithdrawal clears a withdrawal for processing.
func (s *Service) ApproveWithdrawal(ctx context.Context, id uuid.UUID, admin string) (*entities.Withdrawal, error) {
	w, err := s.withdrawalRepo.Transition(ctx, repositories.TransitionParams{
		ID:        id,
		From:      []entities.WithdrawalStatus{entities.WithdrawalStatusPending, entities.WithdrawalStatusValidating},
		To:        entities.WithdrawalStatusApproved,
		Actor:     admin,
		ActorType: entities.ActorTypeAdmin,
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusApproved), string(entities.ActorTypeAdmin)).Inc()
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalApproved, admin, entities.ActorTypeAdmin, id, nil)

	s.logger.Info("Withdrawal approved", "withdrawal_id", id.String(), "admin", admin)
	return w, nil
}

// RejectWithdrawal declines a withdrawal and refunds the reservation.
// A reason is mandatory; it is stored on the request and in the history.
func (s *Service) RejectWithdrawal(ctx context.Context, id uuid.UUID, admin, reason string) (*entities.Withdrawal, error) {
	if reason == "" {
		return nil, fmt.Errorf("rejection reason is required")
	}

	w, err := s.withdrawalRepo.Transition(ctx, repositories.TransitionParams{
		ID:            id,
		From:          []entities.WithdrawalStatus{entities.WithdrawalStatusPending, entities.WithdrawalStatusValidating, entities.WithdrawalStatusApproved},
		To:            entities.WithdrawalStatusRejected,
		Actor:         admin,
		ActorType:     entities.ActorTypeAdmin,
		Note:          reason,
		FailureReason: &reason,
		RefundBalance: true,
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusRejected), string(entities.ActorTypeAdmin)).Inc()
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalRejected, admin, entities.ActorTypeAdmin, id, entities.Metadata{
		"reason": reason,
	})

	s.logger.Info("Withdrawal rejected", "withdrawal_id", id.String(), "admin", admin, "reason", reason)
	return w, nil
}

// ConfirmWithdrawal releases a withdrawal held for out-of-band
// confirmation so the scheduler can pick it up again.
func (s *Service) ConfirmWithdrawal(ctx context.Context, id uuid.UUID, admin string) error {
	if _, err := s.withdrawalRepo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.withdrawalRepo.SetAwaitingConfirmation(ctx, id, false); err != nil {
		return err
	}
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalApproved, admin, entities.ActorTypeAdmin, id, entities.Metadata{
		"confirmation": "released",
	})
	return nil
}

// ProcessWithdrawal drives one withdrawal through its provider. actor
// identifies who asked for the attempt; the scheduler passes the system
// actor. The status compare-and-swap into processing is the lease: a
// concurrent attempt loses the swap and becomes a no-op.
func (s *Service) ProcessWithdrawal(ctx context.Context, id uuid.UUID, actor string, actorType entities.ActorType) (*entities.Withdrawal, error) {
	current, err := s.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsFinal() {
		if current.Status == entities.WithdrawalStatusFailed {
			return nil, entities.ErrRetriesExhausted
		}
		return nil, entities.ErrStatusConflict
	}

	cfg, err := s.configRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment config: %w", err)
	}
	if !cfg.ProviderEnabled(current.Provider) {
		return nil, &entities.RoutingError{
			Code:    entities.RoutingProviderDisabled,
			Country: current.PaymentDetails.Country(),
			Method:  current.MethodType,
		}
	}

	if _, ok := s.processors[current.Provider]; !ok {
		return nil, fmt.Errorf("no processor registered for provider %s", current.Provider)
	}

	w, err := s.withdrawalRepo.Transition(ctx, repositories.TransitionParams{
		ID: id,
		From: []entities.WithdrawalStatus{
			entities.WithdrawalStatusApproved,
			entities.WithdrawalStatusQueued,
			entities.WithdrawalStatusFailed,
		},
		To:             entities.WithdrawalStatusProcessing,
		Actor:          actor,
		ActorType:      actorType,
		ClearNextRetry: true,
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusProcessing), string(actorType)).Inc()
	s.auditService.LogStatusTransition(ctx, actor, actorType, id, current.Status, entities.WithdrawalStatusProcessing, "")
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalProcessed, actor, actorType, id, entities.Metadata{
		"attempt":  w.RetryCount + 1,
		"provider": string(w.Provider),
	})

	return s.dispatchPayment(ctx, w, cfg, actor, actorType)
}

// dispatchPayment performs the provider call for a withdrawal already
// holding the processing lease and settles the outcome.
func (s *Service) dispatchPayment(ctx context.Context, w *entities.Withdrawal, cfg *entities.PaymentConfig, actor string, actorType entities.ActorType) (*entities.Withdrawal, error) {
	req := &entities.PaymentRequest{
		WithdrawalID:   w.ID,
		AmountMinor:    w.AmountMinor,
		SourceCurrency: w.SourceCurrency,
		TargetCurrency: w.TargetCurrency,
		Recipient:      w.PaymentDetails,
		Reference:      w.Reference(),
		IdempotencyKey: entities.PaymentIdempotencyKey(w.ID, w.RetryCount),
	}

	processor := s.processors[w.Provider]
	breaker := s.breakers[w.Provider]

	var result *entities.PaymentResult
	start := time.Now()
	callErr := breaker.Execute(ctx, func() error {
		var innerErr error
		result, innerErr = processor.ProcessPayment(ctx, req)
		return innerErr
	})
	metrics.ProviderCallDuration.WithLabelValues(string(w.Provider)).Observe(time.Since(start).Seconds())

	if callErr != nil {
		metrics.ProviderCallsTotal.WithLabelValues(string(w.Provider), "error").Inc()
		s.logger.Error("Provider call failed",
			"withdrawal_id", w.ID.String(),
			"provider", string(w.Provider),
			"error", callErr)
		return s.handleFailure(ctx, w, cfg, actor, actorType, callErr.Error(), nil)
	}

	if !result.Success {
		metrics.ProviderCallsTotal.WithLabelValues(string(w.Provider), "rejected").Inc()
		s.logger.Warn("Provider rejected payment",
			"withdrawal_id", w.ID.String(),
			"provider", string(w.Provider),
			"provider_status", result.Status,
			"message", result.Message)
		return s.handleFailure(ctx, w, cfg, actor, actorType, result.Message, result)
	}

	metrics.ProviderCallsTotal.WithLabelValues(string(w.Provider), "success").Inc()
	return s.handleSuccess(ctx, w, actor, actorType, result)
}

// handleSuccess records the provider acceptance. The withdrawal moves
// to sent and the reserved amount is committed into the lifetime stats;
// final settlement arrives later by webhook.
func (s *Service) handleSuccess(ctx context.Context, w *entities.Withdrawal, actor string, actorType entities.ActorType, result *entities.PaymentResult) (*entities.Withdrawal, error) {
	params := repositories.TransitionParams{
		ID:               w.ID,
		From:             []entities.WithdrawalStatus{entities.WithdrawalStatusProcessing},
		To:               entities.WithdrawalStatusSent,
		Actor:            actor,
		ActorType:        actorType,
		ProviderResponse: result.RawResponse,
		CommitStats:      true,
	}
	if result.TransactionID != "" {
		params.ProviderTransactionID = &result.TransactionID
	}
	if result.Status != "" {
		params.ProviderStatus = &result.Status
	}
	params.Fees = result.Fees
	params.ExchangeRate = result.ExchangeRate

	updated, err := s.withdrawalRepo.Transition(ctx, params)
	if err != nil {
		// The provider accepted the payment but we lost the record
		// update. The transaction id is in the audit trail below and in
		// the provider response for reconciliation.
		s.logger.Error("Failed to record provider acceptance",
			"withdrawal_id", w.ID.String(),
			"provider_transaction_id", result.TransactionID,
			"error", err)
		s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalSent, actor, actorType, w.ID, entities.Metadata{
			"provider_transaction_id": result.TransactionID,
			"record_error":            err.Error(),
		})
		return nil, err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusSent), string(actorType)).Inc()
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalSent, actor, actorType, w.ID, entities.Metadata{
		"provider_transaction_id": result.TransactionID,
		"provider_status":         result.Status,
	})

	s.logger.Info("Payment accepted by provider",
		"withdrawal_id", w.ID.String(),
		"provider", string(w.Provider),
		"provider_transaction_id", result.TransactionID)

	return updated, nil
}

// handleFailure books a failed attempt. While retry budget remains the
// withdrawal stays retryable with a backoff stamp; once exhausted it
// becomes terminal, the reservation is refunded and admins are alerted.
func (s *Service) handleFailure(ctx context.Context, w *entities.Withdrawal, cfg *entities.PaymentConfig, actor string, actorType entities.ActorType, reason string, result *entities.PaymentResult) (*entities.Withdrawal, error) {
	attempts := w.RetryCount + 1
	exhausted := attempts >= w.MaxRetries

	params := repositories.TransitionParams{
		ID:             w.ID,
		From:           []entities.WithdrawalStatus{entities.WithdrawalStatusProcessing},
		To:             entities.WithdrawalStatusFailed,
		Actor:          actor,
		ActorType:      actorType,
		Note:           reason,
		FailureReason:  &reason,
		IncrementRetry: true,
	}
	if result != nil {
		params.ProviderResponse = result.RawResponse
		if result.Status != "" {
			params.ProviderStatus = &result.Status
		}
	}

	if exhausted {
		canRetry := false
		params.SetCanRetry = &canRetry
		params.RefundBalance = true
	} else {
		nextRetry := time.Now().UTC().Add(time.Duration(cfg.RetryDelayMinutes) * time.Minute)
		params.NextRetryAt = &nextRetry
	}

	updated, err := s.withdrawalRepo.Transition(ctx, params)
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusFailed), string(actorType)).Inc()

	if exhausted {
		s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalRefunded, actor, actorType, w.ID, entities.Metadata{
			"reason":         reason,
			"attempts":       attempts,
			"refunded_minor": w.AmountMinor,
		})
		s.logger.Error("Withdrawal failed permanently",
			"withdrawal_id", w.ID.String(),
			"attempts", attempts,
			"reason", reason)

		if cfg.NotifyAdminsOnFailure && len(cfg.AdminEmails) > 0 {
			if alertErr := s.alertService.SendWithdrawalFailedAlert(ctx, cfg.AdminEmails, updated, reason); alertErr != nil {
				s.logger.Warn("Failed to send failure alert", "withdrawal_id", w.ID.String(), "error", alertErr)
			}
		}
	} else {
		s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalFailed, actor, actorType, w.ID, entities.Metadata{
			"reason":   reason,
			"attempts": attempts,
			"retry_at": updated.NextRetryAt,
		})
		s.logger.Warn("Withdrawal attempt failed, will retry",
			"withdrawal_id", w.ID.String(),
			"attempts", attempts,
			"max_retries", w.MaxRetries,
			"reason", reason)
	}

	return updated, nil
}

// GetPaymentConfig returns the operator config.
func (s *Service) GetPaymentConfig(ctx context.Context) (*entities.PaymentConfig, error) {
	return s.configRepo.Get(ctx)
}

// UpdatePaymentConfig validates and persists the operator config.
func (s *Service) UpdatePaymentConfig(ctx context.Context, cfg *entities.PaymentConfig, admin string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.UpdatedBy = admin
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.configRepo.Update(ctx, cfg); err != nil {
		return err
	}
	s.logger.Info("Payment config updated", "admin", admin, "mode", string(cfg.PaymentMode))
	return nil
}
