package flutterwave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/infrastructure/config"
)

type transferStub struct {
	status   int
	response string

	gotBody   map[string]interface{}
	gotHeader http.Header
}

func newTransferStub(status int, response string) *transferStub {
	return &transferStub{status: status, response: response}
}

func (s *transferStub) serve(t *testing.T) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transfers", r.URL.Path)
		s.gotHeader = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.gotBody))
		w.WriteHeader(s.status)
		fmt.Fprint(w, s.response)
	}))
	t.Cleanup(srv.Close)
	return NewClient(config.FlutterwaveConfig{BaseURL: srv.URL, SecretKey: "sk-test"}, zap.NewNop())
}

func momoRequest() *entities.PaymentRequest {
	return &entities.PaymentRequest{
		AmountMinor:    350000,
		SourceCurrency: "EUR",
		TargetCurrency: "KES",
		Reference:      "WD-7e1f2a3b-4444-4555-8666-977778888bbb",
		IdempotencyKey: "7e1f2a3b-4444-4555-8666-977778888bbb-1",
		Recipient: entities.PaymentDetails{
			Method: entities.MethodMobileMoney,
			MobileMoney: &entities.MobileMoneyDetails{
				PhoneNumber: "+254700000001",
				Network:     "MPESA",
				FullName:    "Grace Example",
				Country:     "KE",
			},
		},
	}
}

const acceptedResponse = `{"status":"success","message":"Transfer Queued Successfully","data":{"id":88221,"status":"NEW","fee":45.00,"reference":"7e1f2a3b-4444-4555-8666-977778888bbb-1"}}`

func TestProcessPaymentIssuesTransfer(t *testing.T) {
	stub := newTransferStub(http.StatusOK, acceptedResponse)
	client := stub.serve(t)

	result, err := client.ProcessPayment(context.Background(), momoRequest())
	require.NoError(t, err)

	require.True(t, result.Success)
	assert.Equal(t, "88221", result.TransactionID)
	assert.Equal(t, "NEW", result.Status)
	require.NotNil(t, result.Fees)
	assert.Equal(t, "45", result.Fees.String())

	assert.Equal(t, "Bearer sk-test", stub.gotHeader.Get("Authorization"))
	assert.Equal(t, "MPS", stub.gotBody["account_bank"])
	assert.Equal(t, "+254700000001", stub.gotBody["account_number"])
	assert.Equal(t, "3500", stub.gotBody["amount"])
	assert.Equal(t, "KES", stub.gotBody["currency"])
	assert.Equal(t, "Grace Example", stub.gotBody["beneficiary_name"])
	assert.Equal(t, "7e1f2a3b-4444-4555-8666-977778888bbb-1", stub.gotBody["reference"])
	assert.Equal(t, "WD-7e1f2a3b-4444-4555-8666-977778888bbb", stub.gotBody["narration"])
}

func TestProcessPaymentPassesUnknownNetworkThrough(t *testing.T) {
	stub := newTransferStub(http.StatusOK, acceptedResponse)
	client := stub.serve(t)

	req := momoRequest()
	req.Recipient.MobileMoney.Network = "ORANGE"

	_, err := client.ProcessPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ORANGE", stub.gotBody["account_bank"])
}

func TestProcessPaymentRejectionIsNotAnError(t *testing.T) {
	stub := newTransferStub(http.StatusOK,
		`{"status":"error","message":"Insufficient balance in payout wallet","data":{"id":0,"status":"FAILED"}}`)
	client := stub.serve(t)

	result, err := client.ProcessPayment(context.Background(), momoRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "FAILED", result.Status)
	assert.Contains(t, result.Message, "Insufficient balance")
}

func TestProcessPaymentHTTPErrorIsNotAnError(t *testing.T) {
	stub := newTransferStub(http.StatusBadRequest,
		`{"status":"error","message":"Invalid account number","data":{}}`)
	client := stub.serve(t)

	result, err := client.ProcessPayment(context.Background(), momoRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Invalid account number")
}

func TestProcessPaymentUnparseableResponse(t *testing.T) {
	stub := newTransferStub(http.StatusBadGateway, `<html>upstream timeout</html>`)
	client := stub.serve(t)

	result, err := client.ProcessPayment(context.Background(), momoRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "http_502", result.Status)
	assert.Contains(t, result.Message, "unparseable provider response")
}

func TestProcessPaymentRequiresMobileMoneyDetails(t *testing.T) {
	stub := newTransferStub(http.StatusOK, acceptedResponse)
	client := stub.serve(t)

	req := momoRequest()
	req.Recipient = entities.PaymentDetails{
		Method: entities.MethodBankTransfer,
		Bank:   &entities.BankAccountDetails{AccountHolderName: "A", IBAN: "DE89370400440532013000", Country: "DE"},
	}

	_, err := client.ProcessPayment(context.Background(), req)
	require.Error(t, err)
}
