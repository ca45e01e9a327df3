// Package auto_payment runs the cron-driven scheduler that drives
// automatic withdrawals to their providers.
package auto_payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/repositories"
	"github.com/payout-service/payout_service/internal/domain/services/payout"
	"github.com/payout-service/payout_service/pkg/logger"
	"github.com/payout-service/payout_service/pkg/metrics"
)

const schedulerActor = "auto_payment_scheduler"

// AuditService records scheduler run summaries.
type AuditService interface {
	LogSchedulerRun(ctx context.Context, picked, succeeded, failed, skipped int)
}

// Config holds scheduler settings.
type Config struct {
	CronSpec       string
	BatchSize      int
	InterItemDelay time.Duration
}

// DefaultConfig returns the default scheduler settings.
func DefaultConfig() Config {
	return Config{
		CronSpec:       "*/5 * * * *",
		BatchSize:      50,
		InterItemDelay: 500 * time.Millisecond,
	}
}

// Scheduler picks up due automatic withdrawals and retryable failures
// and pushes each through the payout service. One run at a time; a tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	cfg            Config
	payoutSvc      *payout.Service
	withdrawalRepo repositories.WithdrawalRepository
	auditService   AuditService
	logger         *logger.Logger

	cron    *cron.Cron
	running sync.Mutex

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	wg             sync.WaitGroup
}

// NewScheduler creates the automatic payment scheduler.
func NewScheduler(
	cfg Config,
	payoutSvc *payout.Service,
	withdrawalRepo repositories.WithdrawalRepository,
	auditService AuditService,
	log *logger.Logger,
) *Scheduler {
	if cfg.CronSpec == "" {
		cfg.CronSpec = DefaultConfig().CronSpec
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:            cfg,
		payoutSvc:      payoutSvc,
		withdrawalRepo: withdrawalRepo,
		auditService:   auditService,
		logger:         log,
		cron:           cron.New(),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start registers the cron entry and begins ticking.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.CronSpec, func() {
		s.wg.Add(1)
		defer s.wg.Done()
		s.RunOnce(s.shutdownCtx)
	})
	if err != nil {
		return fmt.Errorf("invalid scheduler cron spec %q: %w", s.cfg.CronSpec, err)
	}

	s.cron.Start()
	s.logger.Info("Auto payment scheduler started",
		"cron_spec", s.cfg.CronSpec,
		"batch_size", s.cfg.BatchSize)
	return nil
}

// Shutdown stops the cron and waits for an in-flight run to finish.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	cronCtx := s.cron.Stop()
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Auto payment scheduler stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler shutdown timeout exceeded")
	}
}

// RunOnce executes a single scheduler pass. The operator config is
// re-read at the start of every pass so a mode flip takes effect on the
// next tick. Per-item failures never abort the pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("Scheduler tick skipped, previous run still in progress")
		return
	}
	defer s.running.Unlock()

	metrics.SchedulerRunsTotal.Inc()

	cfg, err := s.payoutSvc.GetPaymentConfig(ctx)
	if err != nil {
		s.logger.Error("Scheduler could not load payment config", "error", err)
		return
	}
	if cfg.PaymentMode == entities.PaymentModeManual {
		s.logger.Info("Scheduler idle, payment mode is manual")
		return
	}

	now := time.Now().UTC()

	due, err := s.withdrawalRepo.ListAutoEligible(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("Scheduler could not list eligible withdrawals", "error", err)
		return
	}

	remaining := s.cfg.BatchSize - len(due)
	if remaining > 0 {
		retryable, err := s.withdrawalRepo.ListRetryable(ctx, now, remaining)
		if err != nil {
			s.logger.Error("Scheduler could not list retryable withdrawals", "error", err)
		} else {
			due = append(due, retryable...)
		}
	}

	if len(due) == 0 {
		return
	}

	s.logger.Info("Scheduler run starting", "picked", len(due))

	var succeeded, failed, skipped int
	for i, w := range due {
		select {
		case <-ctx.Done():
			s.logger.Warn("Scheduler run interrupted",
				"processed", i,
				"remaining", len(due)-i)
			s.auditService.LogSchedulerRun(ctx, len(due), succeeded, failed, skipped)
			return
		default:
		}

		// Amounts above the threshold may have entered the queue before
		// a hybrid threshold was lowered. Leave them for an admin.
		if cfg.PaymentMode == entities.PaymentModeHybrid && w.AmountMinor > cfg.AutoPaymentThresholdMinor {
			skipped++
			metrics.SchedulerItemsProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		outcome := s.processOne(ctx, w.ID)
		switch outcome {
		case "succeeded":
			succeeded++
		case "failed":
			failed++
		default:
			skipped++
		}
		metrics.SchedulerItemsProcessed.WithLabelValues(outcome).Inc()

		if s.cfg.InterItemDelay > 0 && i < len(due)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.InterItemDelay):
			}
		}
	}

	s.auditService.LogSchedulerRun(ctx, len(due), succeeded, failed, skipped)
	s.logger.Info("Scheduler run finished",
		"picked", len(due),
		"succeeded", succeeded,
		"failed", failed,
		"skipped", skipped)
}

// processOne drives a single withdrawal and classifies the outcome.
// A lost status swap means another actor got there first; that is a
// skip, not an error.
func (s *Scheduler) processOne(ctx context.Context, id uuid.UUID) string {
	updated, err := s.payoutSvc.ProcessWithdrawal(ctx, id, schedulerActor, entities.ActorTypeSystem)
	if err != nil {
		if errors.Is(err, entities.ErrStatusConflict) || errors.Is(err, entities.ErrRetriesExhausted) {
			return "skipped"
		}
		s.logger.Error("Scheduler failed to process withdrawal",
			"withdrawal_id", id.String(),
			"error", err)
		return "failed"
	}

	switch updated.Status {
	case entities.WithdrawalStatusSent, entities.WithdrawalStatusCompleted:
		return "succeeded"
	default:
		return "failed"
	}
}
