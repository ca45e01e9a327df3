package payout

import (
	"context"
	"errors"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/repositories"
	"github.com/payout-service/payout_service/pkg/metrics"
)

// MapWiseTransferState maps a Wise transfer state to an engine status.
// Unknown states map to processing and are recorded without effect.
func MapWiseTransferState(state string) entities.WithdrawalStatus {
	switch state {
	case "outgoing_payment_sent":
		return entities.WithdrawalStatusCompleted
	case "funds_refunded", "bounced_back", "charged_back":
		return entities.WithdrawalStatusFailed
	case "cancelled":
		return entities.WithdrawalStatusCancelled
	default:
		return entities.WithdrawalStatusProcessing
	}
}

// MapFlutterwaveEvent maps a Flutterwave event type and transfer status
// to an engine status.
func MapFlutterwaveEvent(eventType, status string) entities.WithdrawalStatus {
	switch {
	case eventType == "transfer.completed" && status == "SUCCESSFUL":
		return entities.WithdrawalStatusCompleted
	case eventType == "transfer.completed" && status == "FAILED":
		return entities.WithdrawalStatusFailed
	case eventType == "transfer.failed" || status == "FAILED":
		return entities.WithdrawalStatusFailed
	case eventType == "transfer.reversed":
		return entities.WithdrawalStatusFailed
	default:
		return entities.WithdrawalStatusProcessing
	}
}

// ApplyProviderEvent settles a verified provider event against its
// withdrawal. The event is recorded at most once: a duplicate delivery
// returns ErrDuplicateWebhookEvent with no state change. Events that
// cannot be matched, or that arrive after the withdrawal is final, are
// audited and dropped without error so the provider stops redelivering.
func (s *Service) ApplyProviderEvent(ctx context.Context, event *entities.ProviderEvent) error {
	already, err := s.eventStore.MarkProcessed(ctx, event.DedupKey(), s.webhookEventTTL)
	if err != nil {
		return err
	}
	if already {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Provider), "duplicate").Inc()
		s.logger.Info("Duplicate webhook event ignored",
			"provider", string(event.Provider),
			"event_id", event.EventID,
			"event_type", event.EventType)
		return entities.ErrDuplicateWebhookEvent
	}

	w, err := s.matchWithdrawal(ctx, event)
	if err != nil {
		if errors.Is(err, entities.ErrWithdrawalNotFound) {
			metrics.WebhookEventsTotal.WithLabelValues(string(event.Provider), "unmatched").Inc()
			s.auditService.LogWebhookReceived(ctx, event.Provider, event.EventID, event.EventType, "unmatched", nil)
			s.logger.Warn("Webhook event did not match any withdrawal",
				"provider", string(event.Provider),
				"transfer_id", event.TransferID,
				"reference", event.Reference)
			return nil
		}
		s.releaseEvent(ctx, event)
		return err
	}

	if w.IsFinal() {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Provider), "stale").Inc()
		s.auditService.LogWebhookReceived(ctx, event.Provider, event.EventID, event.EventType, "stale", &w.ID)
		s.logger.Info("Webhook event for settled withdrawal ignored",
			"withdrawal_id", w.ID.String(),
			"status", string(w.Status),
			"event_type", event.EventType)
		return nil
	}

	switch event.Status {
	case entities.WithdrawalStatusCompleted:
		err = s.settleCompleted(ctx, w, event)
	case entities.WithdrawalStatusFailed:
		err = s.settleFailed(ctx, w, event)
	case entities.WithdrawalStatusCancelled:
		err = s.settleCancelled(ctx, w, event)
	default:
		// Informational state update, no transition.
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Provider), "informational").Inc()
		s.auditService.LogWebhookReceived(ctx, event.Provider, event.EventID, event.EventType, "informational", &w.ID)
		return nil
	}

	if err != nil {
		if errors.Is(err, entities.ErrStatusConflict) {
			// Another actor settled the withdrawal between our read and
			// the swap. Treat as already handled.
			metrics.WebhookEventsTotal.WithLabelValues(string(event.Provider), "stale").Inc()
			s.auditService.LogWebhookReceived(ctx, event.Provider, event.EventID, event.EventType, "stale", &w.ID)
			return nil
		}
		s.releaseEvent(ctx, event)
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(event.Provider), "applied").Inc()
	s.auditService.LogWebhookReceived(ctx, event.Provider, event.EventID, event.EventType, "applied", &w.ID)
	return nil
}

// matchWithdrawal resolves the withdrawal an event refers to, first by
// provider transaction id, then by the reference we attached at
// transfer time.
func (s *Service) matchWithdrawal(ctx context.Context, event *entities.ProviderEvent) (*entities.Withdrawal, error) {
	if event.TransferID != "" {
		w, err := s.withdrawalRepo.GetByProviderTransactionID(ctx, event.Provider, event.TransferID)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, entities.ErrWithdrawalNotFound) {
			return nil, err
		}
	}
	if event.Reference != "" {
		return s.withdrawalRepo.GetByReference(ctx, event.Reference)
	}
	return nil, entities.ErrWithdrawalNotFound
}

// releaseEvent frees the dedup claim after a transient processing
// failure so the provider's redelivery is not rejected as a duplicate.
func (s *Service) releaseEvent(ctx context.Context, event *entities.ProviderEvent) {
	if err := s.eventStore.Release(ctx, event.DedupKey()); err != nil {
		s.logger.Error("Failed to release webhook event claim",
			"provider", string(event.Provider),
			"event_id", event.EventID,
			"error", err)
	}
}

// settleCompleted marks the withdrawal delivered. The common path is
// sent -> completed; if the completion webhook outruns our own record
// update the withdrawal is still processing and the stats commit
// happens here instead.
func (s *Service) settleCompleted(ctx context.Context, w *entities.Withdrawal, event *entities.ProviderEvent) error {
	params := repositories.TransitionParams{
		ID:             w.ID,
		From:           []entities.WithdrawalStatus{entities.WithdrawalStatusSent},
		To:             entities.WithdrawalStatusCompleted,
		Actor:          string(event.Provider),
		ActorType:      entities.ActorTypeWebhook,
		ProviderStatus: &event.RawState,
		LastWebhookAt:  &event.ReceivedAt,
	}
	if event.TransferID != "" {
		params.ProviderTransactionID = &event.TransferID
	}

	_, err := s.withdrawalRepo.Transition(ctx, params)
	if errors.Is(err, entities.ErrStatusConflict) {
		params.From = []entities.WithdrawalStatus{entities.WithdrawalStatusProcessing}
		params.CommitStats = true
		_, err = s.withdrawalRepo.Transition(ctx, params)
	}
	if err != nil {
		return err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusCompleted), string(entities.ActorTypeWebhook)).Inc()
	s.logger.Info("Withdrawal completed",
		"withdrawal_id", w.ID.String(),
		"provider", string(event.Provider),
		"raw_state", event.RawState)
	return nil
}

// settleFailed books a provider-reported failure. A failure that the
// provider pushes after accepting the transfer is not retryable on our
// side: the money comes back to the user and admins are alerted. The
// ledger effect depends on how far the withdrawal got. From sent the
// stats were already committed, so they are reversed; from processing
// the reservation is still pending and a plain refund releases it.
func (s *Service) settleFailed(ctx context.Context, w *entities.Withdrawal, event *entities.ProviderEvent) error {
	canRetry := false
	reason := "provider reported failure: " + event.RawState
	params := repositories.TransitionParams{
		ID:             w.ID,
		From:           []entities.WithdrawalStatus{entities.WithdrawalStatusSent},
		To:             entities.WithdrawalStatusFailed,
		Actor:          string(event.Provider),
		ActorType:      entities.ActorTypeWebhook,
		Note:           reason,
		FailureReason:  &reason,
		ProviderStatus: &event.RawState,
		LastWebhookAt:  &event.ReceivedAt,
		SetCanRetry:    &canRetry,
		ReverseStats:   true,
	}

	updated, err := s.withdrawalRepo.Transition(ctx, params)
	if errors.Is(err, entities.ErrStatusConflict) {
		params.From = []entities.WithdrawalStatus{entities.WithdrawalStatusProcessing}
		params.ReverseStats = false
		params.RefundBalance = true
		updated, err = s.withdrawalRepo.Transition(ctx, params)
	}
	if err != nil {
		return err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusFailed), string(entities.ActorTypeWebhook)).Inc()
	s.auditService.LogWithdrawalAction(ctx, entities.AuditActionWithdrawalRefunded, string(event.Provider), entities.ActorTypeWebhook, w.ID, entities.Metadata{
		"reason":         reason,
		"refunded_minor": w.AmountMinor,
	})
	s.logger.Error("Withdrawal failed by provider webhook",
		"withdrawal_id", w.ID.String(),
		"provider", string(event.Provider),
		"raw_state", event.RawState)

	cfg, cfgErr := s.configRepo.Get(ctx)
	if cfgErr == nil && cfg.NotifyAdminsOnFailure && len(cfg.AdminEmails) > 0 {
		if alertErr := s.alertService.SendWithdrawalFailedAlert(ctx, cfg.AdminEmails, updated, reason); alertErr != nil {
			s.logger.Warn("Failed to send failure alert", "withdrawal_id", w.ID.String(), "error", alertErr)
		}
	}
	return nil
}

// settleCancelled books a provider-side cancellation. The money comes
// back either way: stats reversal from sent, refund of the pending
// reservation from processing.
func (s *Service) settleCancelled(ctx context.Context, w *entities.Withdrawal, event *entities.ProviderEvent) error {
	params := repositories.TransitionParams{
		ID:             w.ID,
		From:           []entities.WithdrawalStatus{entities.WithdrawalStatusSent},
		To:             entities.WithdrawalStatusCancelled,
		Actor:          string(event.Provider),
		ActorType:      entities.ActorTypeWebhook,
		Note:           "cancelled by provider",
		ProviderStatus: &event.RawState,
		LastWebhookAt:  &event.ReceivedAt,
		ReverseStats:   true,
	}

	_, err := s.withdrawalRepo.Transition(ctx, params)
	if errors.Is(err, entities.ErrStatusConflict) {
		params.From = []entities.WithdrawalStatus{entities.WithdrawalStatusProcessing}
		params.ReverseStats = false
		params.RefundBalance = true
		_, err = s.withdrawalRepo.Transition(ctx, params)
	}
	if err != nil {
		return err
	}

	metrics.WithdrawalTransitionsTotal.WithLabelValues(string(entities.WithdrawalStatusCancelled), string(entities.ActorTypeWebhook)).Inc()
	s.logger.Info("Withdrawal cancelled by provider",
		"withdrawal_id", w.ID.String(),
		"provider", string(event.Provider))
	return nil
}
