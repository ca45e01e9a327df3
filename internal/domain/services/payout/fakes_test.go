package payout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/repositories"
)

// fakeWithdrawalRepo is an in-memory WithdrawalRepository that applies
// the same compare-and-swap semantics as the SQL implementation.
type fakeWithdrawalRepo struct {
	mu          sync.Mutex
	withdrawals map[uuid.UUID]*entities.Withdrawal
	history     map[uuid.UUID][]*entities.StatusHistoryEntry
	sumSince    int64

	refunds        []uuid.UUID
	statsCommits   []uuid.UUID
	statsReversals []uuid.UUID

	transitionErr error
}

func newFakeWithdrawalRepo() *fakeWithdrawalRepo {
	return &fakeWithdrawalRepo{
		withdrawals: make(map[uuid.UUID]*entities.Withdrawal),
		history:     make(map[uuid.UUID][]*entities.StatusHistoryEntry),
	}
}

func (r *fakeWithdrawalRepo) put(w *entities.Withdrawal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.withdrawals[w.ID] = &cp
}

func (r *fakeWithdrawalRepo) CreateWithReservation(_ context.Context, w *entities.Withdrawal) error {
	r.put(w)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[w.ID] = append(r.history[w.ID], &entities.StatusHistoryEntry{
		WithdrawalID: w.ID,
		Status:       w.Status,
		Actor:        w.UserID.String(),
		ActorType:    entities.ActorTypeUser,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (r *fakeWithdrawalRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, entities.ErrWithdrawalNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *fakeWithdrawalRepo) GetByProviderTransactionID(_ context.Context, provider entities.Provider, transactionID string) (*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.withdrawals {
		if w.Provider == provider && w.ProviderTransactionID != nil && *w.ProviderTransactionID == transactionID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, entities.ErrWithdrawalNotFound
}

func (r *fakeWithdrawalRepo) GetByReference(_ context.Context, reference string) (*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.withdrawals {
		if w.Reference() == reference {
			cp := *w
			return &cp, nil
		}
	}
	return nil, entities.ErrWithdrawalNotFound
}

func (r *fakeWithdrawalRepo) List(_ context.Context, filter entities.WithdrawalFilter) ([]*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Withdrawal
	for _, w := range r.withdrawals {
		if filter.UserID != nil && w.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && w.Status != *filter.Status {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeWithdrawalRepo) ListAutoEligible(_ context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error) {
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

func (r *fakeWithdrawalRepo) ListRetryable(_ context.Context, now time.Time, limit int) ([]*entities.Withdrawal, error) {
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

func (r *fakeWithdrawalRepo) Transition(_ context.Context, params repositories.TransitionParams) (*entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transitionErr != nil {
		return nil, r.transitionErr
	}
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
	if params.ClearNextRetry {
		w.NextRetryAt = nil
	}
	if params.NextRetryAt != nil {
		w.NextRetryAt = params.NextRetryAt
	}
	if params.SetCanRetry != nil {
		w.CanRetry = *params.SetCanRetry
	}
	if params.FailureReason != nil {
		w.FailureReason = params.FailureReason
	}
	if params.ProviderTransactionID != nil {
		w.ProviderTransactionID = params.ProviderTransactionID
	}
	if params.ProviderStatus != nil {
		w.ProviderStatus = params.ProviderStatus
	}
	if params.ProviderResponse != nil {
		w.ProviderResponse = params.ProviderResponse
	}
	if params.Fees != nil {
		w.Fees = params.Fees
	}
	if params.ExchangeRate != nil {
		w.ExchangeRate = params.ExchangeRate
	}
	if params.LastWebhookAt != nil {
		w.LastWebhookAt = params.LastWebhookAt
	}
	if params.RefundBalance {
		r.refunds = append(r.refunds, w.ID)
	}
	if params.CommitStats {
		r.statsCommits = append(r.statsCommits, w.ID)
	}
	if params.ReverseStats {
		r.statsReversals = append(r.statsReversals, w.ID)
	}
	w.UpdatedAt = time.Now().UTC()

	r.history[w.ID] = append(r.history[w.ID], &entities.StatusHistoryEntry{
		WithdrawalID: w.ID,
		Status:       params.To,
		Actor:        params.Actor,
		ActorType:    params.ActorType,
		Note:         params.Note,
		CreatedAt:    time.Now().UTC(),
	})

	cp := *w
	return &cp, nil
}

func (r *fakeWithdrawalRepo) GetStatusHistory(_ context.Context, withdrawalID uuid.UUID) ([]*entities.StatusHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[withdrawalID], nil
}

func (r *fakeWithdrawalRepo) GetStats(_ context.Context, _, _ time.Time) (*entities.WithdrawalStats, error) {
	return &entities.WithdrawalStats{}, nil
}

func (r *fakeWithdrawalRepo) SumSince(_ context.Context, _ uuid.UUID, _ time.Time) (int64, error) {
	return r.sumSince, nil
}

func (r *fakeWithdrawalRepo) SetAwaitingConfirmation(_ context.Context, id uuid.UUID, awaiting bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return entities.ErrWithdrawalNotFound
	}
	w.AwaitingConfirmation = awaiting
	return nil
}

type fakeBalanceRepo struct {
	balance *entities.UserBalance
}

func (r *fakeBalanceRepo) Get(_ context.Context, userID uuid.UUID) (*entities.UserBalance, error) {
	if r.balance == nil {
		return &entities.UserBalance{UserID: userID, Currency: "EUR"}, nil
	}
	return r.balance, nil
}

type fakeConfigRepo struct {
	mu  sync.Mutex
	cfg *entities.PaymentConfig
}

func (r *fakeConfigRepo) Get(_ context.Context) (*entities.PaymentConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.cfg
	return &cp, nil
}

func (r *fakeConfigRepo) Update(_ context.Context, cfg *entities.PaymentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.cfg = &cp
	return nil
}

type fakeEventStore struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
	err      error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{seen: make(map[string]bool)}
}

func (s *fakeEventStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.seen[key] {
		return true, nil
	}
	s.seen[key] = true
	return false, nil
}

func (s *fakeEventStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
	s.released = append(s.released, key)
	return nil
}

// fakeProcessor returns queued results in order; once drained it keeps
// returning the last one.
type fakeProcessor struct {
	mu       sync.Mutex
	results  []*entities.PaymentResult
	errs     []error
	requests []*entities.PaymentRequest
}

func (p *fakeProcessor) ProcessPayment(_ context.Context, req *entities.PaymentRequest) (*entities.PaymentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	i := len(p.requests) - 1
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	if i < 0 {
		return nil, errors.New("no result queued")
	}
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.results[i], err
}

type auditedAction struct {
	Action       entities.AuditAction
	Actor        string
	ActorType    entities.ActorType
	WithdrawalID uuid.UUID
	Detail       entities.Metadata
}

type webhookAudit struct {
	Provider     entities.Provider
	EventID      string
	EventType    string
	Result       string
	WithdrawalID *uuid.UUID
}

type transitionAudit struct {
	WithdrawalID uuid.UUID
	From, To     entities.WithdrawalStatus
}

type fakeAudit struct {
	mu          sync.Mutex
	actions     []auditedAction
	webhooks    []webhookAudit
	transitions []transitionAudit
}

func (a *fakeAudit) LogWithdrawalAction(_ context.Context, action entities.AuditAction, actor string, actorType entities.ActorType, withdrawalID uuid.UUID, detail entities.Metadata) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, auditedAction{action, actor, actorType, withdrawalID, detail})
}

func (a *fakeAudit) LogStatusTransition(_ context.Context, _ string, _ entities.ActorType, withdrawalID uuid.UUID, from, to entities.WithdrawalStatus, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitions = append(a.transitions, transitionAudit{withdrawalID, from, to})
}

func (a *fakeAudit) LogWebhookReceived(_ context.Context, provider entities.Provider, eventID, eventType, result string, withdrawalID *uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.webhooks = append(a.webhooks, webhookAudit{provider, eventID, eventType, result, withdrawalID})
}

func (a *fakeAudit) lastWebhookResult() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.webhooks) == 0 {
		return ""
	}
	return a.webhooks[len(a.webhooks)-1].Result
}

func (a *fakeAudit) hasAction(action entities.AuditAction) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.actions {
		if rec.Action == action {
			return true
		}
	}
	return false
}

type fakeAlert struct {
	mu            sync.Mutex
	failureAlerts int
	reviewAlerts  int
}

func (a *fakeAlert) SendWithdrawalFailedAlert(_ context.Context, _ []string, _ *entities.Withdrawal, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failureAlerts++
	return nil
}

func (a *fakeAlert) SendLargeWithdrawalAlert(_ context.Context, _ []string, _ *entities.Withdrawal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reviewAlerts++
	return nil
}
