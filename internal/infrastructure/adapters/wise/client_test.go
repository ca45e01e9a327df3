package wise

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

type recordedCall struct {
	Method string
	Path   string
	Body   map[string]interface{}
	Header http.Header
}

// wiseStub fakes the quote, recipient, transfer and funding endpoints
// and records every call in arrival order.
type wiseStub struct {
	t     *testing.T
	calls []recordedCall

	quoteStatus    int
	fundingStatus  int
	transferStatus int
}

func newWiseStub(t *testing.T) *wiseStub {
	return &wiseStub{t: t, quoteStatus: http.StatusOK, fundingStatus: http.StatusCreated, transferStatus: http.StatusOK}
}

func (s *wiseStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		s.calls = append(s.calls, recordedCall{Method: r.Method, Path: r.URL.Path, Body: body, Header: r.Header.Clone()})

		switch r.URL.Path {
		case "/v3/quotes":
			if s.quoteStatus >= 400 {
				w.WriteHeader(s.quoteStatus)
				fmt.Fprint(w, `{"errors":[{"code":"CURRENCY_NOT_SUPPORTED","message":"route unavailable"}]}`)
				return
			}
			fmt.Fprint(w, `{"id":"q-100","rate":1.08,"fee":2.35,"sourceAmount":200.00,"targetAmount":213.45}`)
		case "/v1/accounts":
			fmt.Fprint(w, `{"id":5501}`)
		case "/v1/transfers":
			if s.transferStatus >= 400 {
				w.WriteHeader(s.transferStatus)
				fmt.Fprint(w, `{"errors":[{"code":"transfer.duplicate","message":"duplicate transfer"}]}`)
				return
			}
			fmt.Fprint(w, `{"id":9902,"status":"incoming_payment_waiting"}`)
		default:
			if s.fundingStatus >= 400 {
				w.WriteHeader(s.fundingStatus)
				fmt.Fprint(w, `{"errors":[{"code":"balance.insufficient","message":"insufficient balance"}]}`)
				return
			}
			w.WriteHeader(s.fundingStatus)
			fmt.Fprint(w, `{"type":"BALANCE","status":"COMPLETED"}`)
		}
	})
}

func newTestClient(t *testing.T, stub *wiseStub) (*Client, *httptest.Server) {
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	c := NewClient(config.WiseConfig{
		BaseURL:   srv.URL,
		APIToken:  "test-token",
		ProfileID: "prof-7",
	}, zap.NewNop())
	return c, srv
}

func bankRequest() *entities.PaymentRequest {
	return &entities.PaymentRequest{
		AmountMinor:    20000,
		SourceCurrency: "EUR",
		TargetCurrency: "EUR",
		Reference:      "WD-4cb8a7de-1111-4222-8333-94445555aaaa",
		IdempotencyKey: "4cb8a7de-1111-4222-8333-94445555aaaa-0",
		Recipient: entities.PaymentDetails{
			Method: entities.MethodBankTransfer,
			Bank: &entities.BankAccountDetails{
				AccountHolderName: "Ada Example",
				IBAN:              "DE89370400440532013000",
				Country:           "DE",
			},
		},
	}
}

func TestProcessPaymentRunsFullProtocol(t *testing.T) {
	stub := newWiseStub(t)
	client, _ := newTestClient(t, stub)

	result, err := client.ProcessPayment(context.Background(), bankRequest())
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, "9902", result.TransactionID)
	assert.Equal(t, "incoming_payment_waiting", result.Status)
	require.NotNil(t, result.Fees)
	assert.Equal(t, "2.35", result.Fees.String())
	require.NotNil(t, result.ExchangeRate)
	assert.Equal(t, "1.08", result.ExchangeRate.String())

	require.Len(t, stub.calls, 4)
	assert.Equal(t, "/v3/quotes", stub.calls[0].Path)
	assert.Equal(t, "/v1/accounts", stub.calls[1].Path)
	assert.Equal(t, "/v1/transfers", stub.calls[2].Path)
	assert.Equal(t, "/v3/profiles/prof-7/transfers/9902/payments", stub.calls[3].Path)

	for _, call := range stub.calls {
		assert.Equal(t, "Bearer test-token", call.Header.Get("Authorization"))
	}

	quote := stub.calls[0].Body
	assert.Equal(t, "prof-7", quote["profileId"])
	assert.Equal(t, "200", quote["sourceAmount"])

	transfer := stub.calls[2].Body
	assert.Equal(t, "q-100", transfer["quoteUuid"])
	assert.Equal(t, float64(5501), transfer["targetAccount"])
}

func TestProcessPaymentSendsStableIdempotenceID(t *testing.T) {
	stub := newWiseStub(t)
	client, _ := newTestClient(t, stub)

	_, err := client.ProcessPayment(context.Background(), bankRequest())
	require.NoError(t, err)
	first := stub.calls[2].Body["customerTransactionId"]

	_, err = client.ProcessPayment(context.Background(), bankRequest())
	require.NoError(t, err)
	second := stub.calls[6].Body["customerTransactionId"]

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, first, stub.calls[3].Header.Get("X-Idempotence-Uuid"))
}

func TestProcessPaymentQuoteRejection(t *testing.T) {
	stub := newWiseStub(t)
	stub.quoteStatus = http.StatusUnprocessableEntity
	client, _ := newTestClient(t, stub)

	result, err := client.ProcessPayment(context.Background(), bankRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "http_422", result.Status)
	assert.Contains(t, result.Message, "CURRENCY_NOT_SUPPORTED")
	assert.Len(t, stub.calls, 1)
}

func TestProcessPaymentFundingFailureKeepsTransferID(t *testing.T) {
	stub := newWiseStub(t)
	stub.fundingStatus = http.StatusPaymentRequired
	client, _ := newTestClient(t, stub)

	result, err := client.ProcessPayment(context.Background(), bankRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "9902", result.TransactionID)
	assert.Contains(t, result.Message, "insufficient balance")
}

func TestProcessPaymentTransportFailureIsAnError(t *testing.T) {
	// A connection failure never produced a Wise decision, so it must
	// surface as an error the circuit breaker can count, not as a
	// provider rejection.
	srv := httptest.NewServer(newWiseStub(t).handler())
	srv.Close()

	client := NewClient(config.WiseConfig{
		BaseURL:   srv.URL,
		APIToken:  "test-token",
		ProfileID: "prof-7",
	}, zap.NewNop())

	result, err := client.ProcessPayment(context.Background(), bankRequest())
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestProcessPaymentRequiresBankDetails(t *testing.T) {
	client, _ := newTestClient(t, newWiseStub(t))

	req := bankRequest()
	req.Recipient = entities.PaymentDetails{
		Method:      entities.MethodMobileMoney,
		MobileMoney: &entities.MobileMoneyDetails{PhoneNumber: "+254700000001", Network: "MPESA", Country: "KE"},
	}

	_, err := client.ProcessPayment(context.Background(), req)
	require.Error(t, err)
}

func TestRecipientPayloadPerAccountType(t *testing.T) {
	tests := []struct {
		name     string
		bank     *entities.BankAccountDetails
		wantType string
	}{
		{
			name:     "iban",
			bank:     &entities.BankAccountDetails{AccountHolderName: "A", IBAN: "DE89370400440532013000", Country: "DE"},
			wantType: "iban",
		},
		{
			name:     "sort code",
			bank:     &entities.BankAccountDetails{AccountHolderName: "B", AccountNumber: "12345678", Country: "GB"},
			wantType: "sort_code",
		},
		{
			name:     "aba",
			bank:     &entities.BankAccountDetails{AccountHolderName: "C", AccountNumber: "12345678", RoutingNumber: "026009593", Country: "US"},
			wantType: "aba",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newWiseStub(t)
			client, _ := newTestClient(t, stub)

			req := bankRequest()
			req.Recipient.Bank = tt.bank

			_, err := client.ProcessPayment(context.Background(), req)
			require.NoError(t, err)

			recipient := stub.calls[1].Body
			assert.Equal(t, tt.wantType, recipient["type"])
			assert.Equal(t, tt.bank.AccountHolderName, recipient["accountHolderName"])
		})
	}
}
