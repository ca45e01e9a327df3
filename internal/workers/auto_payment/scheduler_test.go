package auto_payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/repositories"
	"github.com/payout-service/payout_service/internal/domain/services/payout"
	"github.com/payout-service/payout_service/pkg/logger"
)

// memRepo is a minimal in-memory WithdrawalRepository for scheduler
// passes: eligibility listing plus the processing status swap.
type memRepo struct {
	mu          sync.Mutex
	withdrawals map[uuid.UUID]*entities.Withdrawal
}

func newMemRepo(ws ...*entities.Withdrawal) *memRepo {
	r := &memRepo{withdrawals: make(map[uuid.UUID]*entities.Withdrawal)}
	for _, w := range ws {
		cp := *w
		r.withdrawals[w.ID] = &cp
	}
	return r
}

func (r *memRepo) CreateWithReservation(context.Context, *entities.Withdrawal) error { return nil }

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, entities.ErrWithdrawalNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *memRepo) GetByProviderTransactionID(context.Context, entities.Provider, string) (*entities.Withdrawal, error) {
	return nil, entities.ErrWithdrawalNotFound
}

func (r *memRepo) GetByReference(context.Context, string) (*entities.Withdrawal, error) {
	return nil, entities.ErrWithdrawalNotFound
}

func (r *memRepo) List(context.Context, entities.WithdrawalFilter) ([]*entities.Withdrawal, error) {
	return nil, nil
}

func (r *memRepo) ListAutoEligible(_ context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Withdrawal
	for _, w := range r.withdrawals {
		if len(out) >= limit {
			break
		}
		if !w.IsAutomatic || w.AwaitingConfirmation {
			continue
		}
		if w.Status != entities.WithdrawalStatusQueued && w.Status != entities.WithdrawalStatusApproved {
			continue
		}
		if w.ProcessAfter != nil && w.ProcessAfter.After(now) {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) ListRetryable(_ context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Withdrawal
	for _, w := range r.withdrawals {
		if len(out) >= limit {
			break
		}
		if w.Status != entities.WithdrawalStatusFailed || !w.CanRetry || w.RetryCount >= w.MaxRetries {
			continue
		}
		if w.NextRetryAt != nil && w.NextRetryAt.After(now) {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) Transition(_ context.Context, params repositories.TransitionParams) (*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[params.ID]
	if !ok {
		return nil, entities.ErrWithdrawalNotFound
	}
	matched := false
	for _, from := range params.From {
		if w.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return nil, entities.ErrStatusConflict
	}
	w.Status = params.To
	if params.IncrementRetry {
		w.RetryCount++
	}
	if params.SetCanRetry != nil {
		w.CanRetry = *params.SetCanRetry
	}
	if params.NextRetryAt != nil {
		w.NextRetryAt = params.NextRetryAt
	}
	if params.ProviderTransactionID != nil {
		w.ProviderTransactionID = params.ProviderTransactionID
	}
	cp := *w
	return &cp, nil
}

func (r *memRepo) GetStatusHistory(context.Context, uuid.UUID) ([]*entities.StatusHistoryEntry, error) {
	return nil, nil
}

func (r *memRepo) GetStats(context.Context, time.Time, time.Time) (*entities.WithdrawalStats, error) {
	return &entities.WithdrawalStats{}, nil
}

func (r *memRepo) SumSince(context.Context, uuid.UUID, time.Time) (int64, error) { return 0, nil }

func (r *memRepo) SetAwaitingConfirmation(context.Context, uuid.UUID, bool) error { return nil }

type memBalanceRepo struct{}

func (memBalanceRepo) Get(_ context.Context, userID uuid.UUID) (*entities.UserBalance, error) {
	return &entities.UserBalance{UserID: userID}, nil
}

type memConfigRepo struct {
	mu  sync.Mutex
	cfg entities.PaymentConfig
}

func (r *memConfigRepo) Get(context.Context) (*entities.PaymentConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.cfg
	return &cp, nil
}

func (r *memConfigRepo) Update(_ context.Context, cfg *entities.PaymentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = *cfg
	return nil
}

type memEventStore struct{}

func (memEventStore) MarkProcessed(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func (memEventStore) Release(context.Context, string) error { return nil }

type countingProcessor struct {
	mu    sync.Mutex
	calls int
	ok    bool
}

func (p *countingProcessor) ProcessPayment(context.Context, *entities.PaymentRequest) (*entities.PaymentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.ok {
		return &entities.PaymentResult{Success: true, TransactionID: "tr-1", Status: "processing"}, nil
	}
	return &entities.PaymentResult{Success: false, Message: "declined"}, nil
}

type schedulerRunRecord struct {
	Picked, Succeeded, Failed, Skipped int
}

type memAudit struct {
	mu   sync.Mutex
	runs []schedulerRunRecord
}

func (a *memAudit) LogSchedulerRun(_ context.Context, picked, succeeded, failed, skipped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, schedulerRunRecord{picked, succeeded, failed, skipped})
}

func (a *memAudit) LogWithdrawalAction(context.Context, entities.AuditAction, string, entities.ActorType, uuid.UUID, entities.Metadata) {
}

func (a *memAudit) LogStatusTransition(context.Context, string, entities.ActorType, uuid.UUID, entities.WithdrawalStatus, entities.WithdrawalStatus, string) {
}

func (a *memAudit) LogWebhookReceived(context.Context, entities.Provider, string, string, string, *uuid.UUID) {
}

type memAlert struct{}

func (memAlert) SendWithdrawalFailedAlert(context.Context, []string, *entities.Withdrawal, string) error {
	return nil
}

func (memAlert) SendLargeWithdrawalAlert(context.Context, []string, *entities.Withdrawal) error {
	return nil
}

func queuedWithdrawal(amount int64) *entities.Withdrawal {
	past := time.Now().UTC().Add(-time.Hour)
	return &entities.Withdrawal{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		UserType:       entities.UserTypeProvider,
		AmountMinor:    amount,
		SourceCurrency: "EUR",
		TargetCurrency: "EUR",
		Provider:       entities.ProviderWise,
		MethodType:     entities.MethodBankTransfer,
		PaymentDetails: entities.PaymentDetails{
			Method: entities.MethodBankTransfer,
			Bank:   &entities.BankAccountDetails{AccountHolderName: "Test", IBAN: "DE89370400440532013000", Country: "DE"},
		},
		Status:       entities.WithdrawalStatusQueued,
		MaxRetries:   3,
		CanRetry:     true,
		IsAutomatic:  true,
		ProcessAfter: &past,
	}
}

func newTestScheduler(repo *memRepo, cfg *memConfigRepo, processor payout.PaymentProcessor, aud *memAudit) *Scheduler {
	svc := payout.NewService(
		repo,
		memBalanceRepo{},
		cfg,
		memEventStore{},
		map[entities.Provider]payout.PaymentProcessor{entities.ProviderWise: processor},
		aud,
		memAlert{},
		logger.NewNop(),
		time.Hour,
	)
	return NewScheduler(Config{BatchSize: 10}, svc, repo, aud, logger.NewNop())
}

func autoConfig() *memConfigRepo {
	return &memConfigRepo{cfg: entities.PaymentConfig{
		PaymentMode:               entities.PaymentModeAutomatic,
		MinWithdrawalMinor:        1,
		MaxWithdrawalMinor:        10000000,
		MaxRetries:                3,
		RetryDelayMinutes:         30,
		WiseEnabled:               true,
		AutoPaymentThresholdMinor: 50000,
	}}
}

func TestRunOnceProcessesDueWithdrawals(t *testing.T) {
	w := queuedWithdrawal(20000)
	repo := newMemRepo(w)
	processor := &countingProcessor{ok: true}
	aud := &memAudit{}
	s := newTestScheduler(repo, autoConfig(), processor, aud)

	s.RunOnce(context.Background())

	assert.Equal(t, 1, processor.calls)
	stored, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusSent, stored.Status)

	require.Len(t, aud.runs, 1)
	assert.Equal(t, schedulerRunRecord{Picked: 1, Succeeded: 1}, aud.runs[0])
}

func TestRunOnceIdleInManualMode(t *testing.T) {
	w := queuedWithdrawal(20000)
	repo := newMemRepo(w)
	processor := &countingProcessor{ok: true}
	cfg := autoConfig()
	cfg.cfg.PaymentMode = entities.PaymentModeManual
	s := newTestScheduler(repo, cfg, processor, &memAudit{})

	s.RunOnce(context.Background())

	assert.Equal(t, 0, processor.calls)
	stored, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusQueued, stored.Status)
}

func TestRunOnceSkipsOversizeItemsInHybridMode(t *testing.T) {
	small := queuedWithdrawal(20000)
	big := queuedWithdrawal(90000)
	repo := newMemRepo(small, big)
	processor := &countingProcessor{ok: true}
	aud := &memAudit{}
	cfg := autoConfig()
	cfg.cfg.PaymentMode = entities.PaymentModeHybrid
	s := newTestScheduler(repo, cfg, processor, aud)

	s.RunOnce(context.Background())

	assert.Equal(t, 1, processor.calls)
	storedBig, err := repo.GetByID(context.Background(), big.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusQueued, storedBig.Status)

	require.Len(t, aud.runs, 1)
	assert.Equal(t, schedulerRunRecord{Picked: 2, Succeeded: 1, Skipped: 1}, aud.runs[0])
}

func TestRunOncePicksUpRetryableFailures(t *testing.T) {
	w := queuedWithdrawal(20000)
	w.Status = entities.WithdrawalStatusFailed
	w.RetryCount = 1
	repo := newMemRepo(w)
	processor := &countingProcessor{ok: true}
	aud := &memAudit{}
	s := newTestScheduler(repo, autoConfig(), processor, aud)

	s.RunOnce(context.Background())

	assert.Equal(t, 1, processor.calls)
	stored, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusSent, stored.Status)
}

func TestRunOnceNotDueYet(t *testing.T) {
	w := queuedWithdrawal(20000)
	future := time.Now().UTC().Add(time.Hour)
	w.ProcessAfter = &future
	repo := newMemRepo(w)
	processor := &countingProcessor{ok: true}
	s := newTestScheduler(repo, autoConfig(), processor, &memAudit{})

	s.RunOnce(context.Background())

	assert.Equal(t, 0, processor.calls)
}

func TestRunOnceCountsProviderRejectionAsFailed(t *testing.T) {
	w := queuedWithdrawal(20000)
	repo := newMemRepo(w)
	processor := &countingProcessor{ok: false}
	aud := &memAudit{}
	s := newTestScheduler(repo, autoConfig(), processor, aud)

	s.RunOnce(context.Background())

	stored, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	require.Len(t, aud.runs, 1)
	assert.Equal(t, schedulerRunRecord{Picked: 1, Failed: 1}, aud.runs[0])
}

func TestShutdownStopsCleanly(t *testing.T) {
	repo := newMemRepo()
	s := newTestScheduler(repo, autoConfig(), &countingProcessor{ok: true}, &memAudit{})
	require.NoError(t, s.Start())
	require.NoError(t, s.Shutdown(5*time.Second))
}
