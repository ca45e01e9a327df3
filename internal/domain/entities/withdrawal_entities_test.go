package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitionTable(t *testing.T) {
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusValidating))
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusQueued))
	assert.True(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusCancelled))
	assert.True(t, WithdrawalStatusApproved.CanTransitionTo(WithdrawalStatusProcessing))
	assert.True(t, WithdrawalStatusProcessing.CanTransitionTo(WithdrawalStatusSent))
	assert.True(t, WithdrawalStatusProcessing.CanTransitionTo(WithdrawalStatusCompleted))
	assert.True(t, WithdrawalStatusSent.CanTransitionTo(WithdrawalStatusCompleted))
	assert.True(t, WithdrawalStatusSent.CanTransitionTo(WithdrawalStatusFailed))
	assert.True(t, WithdrawalStatusFailed.CanTransitionTo(WithdrawalStatusProcessing))

	assert.False(t, WithdrawalStatusPending.CanTransitionTo(WithdrawalStatusSent))
	assert.False(t, WithdrawalStatusApproved.CanTransitionTo(WithdrawalStatusCancelled))
	assert.False(t, WithdrawalStatusCompleted.CanTransitionTo(WithdrawalStatusFailed))
	assert.False(t, WithdrawalStatusRejected.CanTransitionTo(WithdrawalStatusPending))
	assert.False(t, WithdrawalStatusCancelled.CanTransitionTo(WithdrawalStatusProcessing))
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, WithdrawalStatusCompleted.IsTerminal())
	assert.True(t, WithdrawalStatusRejected.IsTerminal())
	assert.True(t, WithdrawalStatusCancelled.IsTerminal())

	// Failed is not terminal on its own; finality depends on the request.
	assert.False(t, WithdrawalStatusFailed.IsTerminal())
	assert.False(t, WithdrawalStatusSent.IsTerminal())
}

func TestIsFinalRespectsRetryBudget(t *testing.T) {
	w := &Withdrawal{Status: WithdrawalStatusFailed, CanRetry: true, RetryCount: 1, MaxRetries: 3}
	assert.False(t, w.IsFinal())

	w.RetryCount = 3
	assert.True(t, w.IsFinal())

	w.RetryCount = 1
	w.CanRetry = false
	assert.True(t, w.IsFinal())

	w = &Withdrawal{Status: WithdrawalStatusCompleted}
	assert.True(t, w.IsFinal())

	w = &Withdrawal{Status: WithdrawalStatusSent}
	assert.False(t, w.IsFinal())
}

func TestValidateTransitionRejectsUnknownStatus(t *testing.T) {
	err := WithdrawalStatusPending.ValidateTransition(WithdrawalStatus("teleported"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid withdrawal status")
}

func TestPaymentDetailsValidate(t *testing.T) {
	bank := PaymentDetails{
		Method: MethodBankTransfer,
		Bank:   &BankAccountDetails{AccountHolderName: "Jan Kowalski", IBAN: "DE89370400440532013000", Country: "DE"},
	}
	require.NoError(t, bank.Validate())
	assert.Equal(t, "DE", bank.Country())

	momo := PaymentDetails{
		Method:      MethodMobileMoney,
		MobileMoney: &MobileMoneyDetails{PhoneNumber: "+233501234567", Network: "MTN", Country: "GH"},
	}
	require.NoError(t, momo.Validate())
	assert.Equal(t, "GH", momo.Country())

	require.Error(t, PaymentDetails{Method: MethodBankTransfer}.Validate())
	require.Error(t, PaymentDetails{Method: MethodMobileMoney, MobileMoney: &MobileMoneyDetails{Country: "GH"}}.Validate())
	require.Error(t, PaymentDetails{Method: MethodType("carrier_pigeon")}.Validate())
}

func TestPaymentIdempotencyKeyIsStablePerAttempt(t *testing.T) {
	id := uuid.New()
	first := PaymentIdempotencyKey(id, 0)
	again := PaymentIdempotencyKey(id, 0)
	second := PaymentIdempotencyKey(id, 1)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, second)
}

func TestProviderEventDedupKey(t *testing.T) {
	e := &ProviderEvent{Provider: ProviderWise, EventID: "evt-1", EventType: "transfers#state-change"}
	assert.Equal(t, "wise:evt-1:transfers#state-change", e.DedupKey())
}

func TestUserTypeCommissions(t *testing.T) {
	assert.True(t, UserTypeAffiliate.HasCommissions())
	assert.True(t, UserTypeBlogger.HasCommissions())
	assert.False(t, UserTypeProvider.HasCommissions())
	assert.False(t, UserTypeLawyer.HasCommissions())
}

func TestWithdrawalReference(t *testing.T) {
	w := &Withdrawal{ID: uuid.MustParse("11111111-2222-3333-4444-555555555555")}
	assert.Equal(t, "WD-11111111-2222-3333-4444-555555555555", w.Reference())
}
