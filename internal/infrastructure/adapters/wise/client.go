// Package wise implements the bank-transfer rail adapter. The rail's
// four-step protocol (quote, recipient, transfer, funding) stays inside
// this package; callers only ever see the uniform payment result.
package wise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/infrastructure/config"
)

// Client talks to the Wise API.
type Client struct {
	baseURL    string
	apiToken   string
	profileID  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Wise API client.
func NewClient(cfg config.WiseConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiToken:   cfg.APIToken,
		profileID:  cfg.ProfileID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// APIError represents a Wise API error response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("Wise API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

type quoteResponse struct {
	ID           string          `json:"id"`
	Rate         decimal.Decimal `json:"rate"`
	Fee          decimal.Decimal `json:"fee"`
	SourceAmount decimal.Decimal `json:"sourceAmount"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
}

type recipientResponse struct {
	ID int64 `json:"id"`
}

type transferResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// ProcessPayment executes the full payout protocol against Wise. The
// transfer and funding calls carry an idempotence uuid derived from the
// caller's key, so a timed-out call retried by us cannot create a
// second transfer on the provider side.
func (c *Client) ProcessPayment(ctx context.Context, req *entities.PaymentRequest) (*entities.PaymentResult, error) {
	if req.Recipient.Bank == nil {
		return nil, fmt.Errorf("wise payment requires bank account details")
	}

	amount := decimal.New(req.AmountMinor, -2)

	quote, err := c.createQuote(ctx, req.SourceCurrency, req.TargetCurrency, amount)
	if err != nil {
		if !isAPIError(err) {
			return nil, err
		}
		return failedResult(err), nil
	}

	recipientID, err := c.createRecipient(ctx, req.TargetCurrency, req.Recipient.Bank)
	if err != nil {
		if !isAPIError(err) {
			return nil, err
		}
		return failedResult(err), nil
	}

	idempotenceID := deterministicUUID(req.IdempotencyKey)

	transfer, raw, err := c.createTransfer(ctx, quote.ID, recipientID, req.Reference, idempotenceID)
	if err != nil {
		if !isAPIError(err) {
			return nil, err
		}
		return failedResult(err), nil
	}

	if err := c.fundTransfer(ctx, transfer.ID, idempotenceID); err != nil {
		if !isAPIError(err) {
			return nil, err
		}
		// The transfer exists but is unfunded; report failure with the
		// transfer id so a webhook or retry can reconcile it.
		res := failedResult(err)
		res.TransactionID = fmt.Sprintf("%d", transfer.ID)
		res.RawResponse = raw
		return res, nil
	}

	c.logger.Info("Wise transfer funded",
		zap.Int64("transfer_id", transfer.ID),
		zap.String("reference", req.Reference),
		zap.String("quote_id", quote.ID))

	fee := quote.Fee
	rate := quote.Rate
	return &entities.PaymentResult{
		Success:       true,
		TransactionID: fmt.Sprintf("%d", transfer.ID),
		Status:        transfer.Status,
		Fees:          &fee,
		ExchangeRate:  &rate,
		RawResponse:   raw,
	}, nil
}

func (c *Client) createQuote(ctx context.Context, source, target string, amount decimal.Decimal) (*quoteResponse, error) {
	body := map[string]interface{}{
		"profileId":      c.profileID,
		"sourceCurrency": source,
		"targetCurrency": target,
		"sourceAmount":   amount,
	}
	var quote quoteResponse
	if _, err := c.doRequest(ctx, http.MethodPost, "/v3/quotes", body, nil, &quote); err != nil {
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}
	return &quote, nil
}

func (c *Client) createRecipient(ctx context.Context, currency string, bank *entities.BankAccountDetails) (int64, error) {
	details := map[string]interface{}{
		"legalType": "PRIVATE",
	}
	accountType := "iban"
	if bank.IBAN != "" {
		details["IBAN"] = bank.IBAN
	} else {
		accountType = "sort_code"
		details["accountNumber"] = bank.AccountNumber
		if bank.RoutingNumber != "" {
			accountType = "aba"
			details["abartn"] = bank.RoutingNumber
		}
	}
	if bank.SwiftCode != "" {
		details["BIC"] = bank.SwiftCode
	}

	body := map[string]interface{}{
		"profile":           c.profileID,
		"accountHolderName": bank.AccountHolderName,
		"currency":          currency,
		"type":              accountType,
		"country":           bank.Country,
		"details":           details,
	}
	var recipient recipientResponse
	if _, err := c.doRequest(ctx, http.MethodPost, "/v1/accounts", body, nil, &recipient); err != nil {
		return 0, fmt.Errorf("failed to create recipient: %w", err)
	}
	return recipient.ID, nil
}

func (c *Client) createTransfer(ctx context.Context, quoteID string, recipientID int64, reference string, idempotenceID uuid.UUID) (*transferResponse, json.RawMessage, error) {
	body := map[string]interface{}{
		"targetAccount":         recipientID,
		"quoteUuid":             quoteID,
		"customerTransactionId": idempotenceID.String(),
		"details": map[string]string{
			"reference": reference,
		},
	}
	var transfer transferResponse
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/transfers", body, nil, &transfer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transfer: %w", err)
	}
	return &transfer, raw, nil
}

func (c *Client) fundTransfer(ctx context.Context, transferID int64, idempotenceID uuid.UUID) error {
	path := fmt.Sprintf("/v3/profiles/%s/transfers/%d/payments", c.profileID, transferID)
	body := map[string]string{"type": "BALANCE"}
	headers := map[string]string{"X-idempotence-uuid": idempotenceID.String()}
	if _, err := c.doRequest(ctx, http.MethodPost, path, body, headers, nil); err != nil {
		return fmt.Errorf("failed to fund transfer: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
		var parsed struct {
			Errors []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"errors"`
		}
		if json.Unmarshal(raw, &parsed) == nil && len(parsed.Errors) > 0 {
			apiErr.Code = parsed.Errors[0].Code
			apiErr.Message = parsed.Errors[0].Message
		}
		return raw, apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return raw, nil
}

// deterministicUUID derives a stable uuid from the idempotency key so
// the same (withdrawal, attempt) pair always sends the same id.
func deterministicUUID(key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
}

// isAPIError reports whether the error is a definitive Wise response,
// as opposed to a transport failure that never reached the API. Only
// the former settle into a failed result; transport failures propagate
// as errors so the circuit breaker counts them.
func isAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func failedResult(err error) *entities.PaymentResult {
	res := &entities.PaymentResult{
		Success: false,
		Status:  "error",
		Message: err.Error(),
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		res.Status = fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	return res
}
