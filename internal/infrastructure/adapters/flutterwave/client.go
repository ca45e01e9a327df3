// Package flutterwave implements the mobile-money rail adapter. The
// provider exposes a single disbursement call; the transfer reference
// doubles as the provider-side idempotency key.
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/infrastructure/config"
)

// Client talks to the Flutterwave transfers API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Flutterwave API client.
func NewClient(cfg config.FlutterwaveConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// mobileMoneyBanks maps a network to the account_bank code the
// transfers API expects.
var mobileMoneyBanks = map[string]string{
	"MPESA":    "MPS",
	"MTN":      "MTN",
	"AIRTEL":   "AIRTEL",
	"TIGO":     "TIGO",
	"VODAFONE": "VODAFONE",
	"BARTER":   "barter",
}

type transferPayload struct {
	AccountBank     string          `json:"account_bank"`
	AccountNumber   string          `json:"account_number"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	BeneficiaryName string          `json:"beneficiary_name"`
	Reference       string          `json:"reference"`
	Narration       string          `json:"narration"`
}

type transferResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID        int64           `json:"id"`
		Status    string          `json:"status"`
		Fee       decimal.Decimal `json:"fee"`
		Reference string          `json:"reference"`
	} `json:"data"`
}

// ProcessPayment issues one mobile-money disbursement. The reference is
// derived from the idempotency key, so the provider rejects a duplicate
// submission of the same attempt instead of paying twice.
func (c *Client) ProcessPayment(ctx context.Context, req *entities.PaymentRequest) (*entities.PaymentResult, error) {
	if req.Recipient.MobileMoney == nil {
		return nil, fmt.Errorf("flutterwave payment requires mobile money details")
	}
	mm := req.Recipient.MobileMoney

	bank, ok := mobileMoneyBanks[mm.Network]
	if !ok {
		bank = mm.Network
	}

	payload := transferPayload{
		AccountBank:     bank,
		AccountNumber:   mm.PhoneNumber,
		Amount:          decimal.New(req.AmountMinor, -2),
		Currency:        req.TargetCurrency,
		BeneficiaryName: mm.FullName,
		Reference:       req.IdempotencyKey,
		Narration:       req.Reference,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("flutterwave transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed transferResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &entities.PaymentResult{
			Success:     false,
			Status:      fmt.Sprintf("http_%d", resp.StatusCode),
			Message:     fmt.Sprintf("unparseable provider response: %s", string(raw)),
			RawResponse: raw,
		}, nil
	}

	if resp.StatusCode >= 400 || parsed.Status != "success" {
		c.logger.Warn("Flutterwave transfer rejected",
			zap.Int("http_status", resp.StatusCode),
			zap.String("provider_status", parsed.Status),
			zap.String("message", parsed.Message),
			zap.String("reference", req.IdempotencyKey))
		return &entities.PaymentResult{
			Success:     false,
			Status:      parsed.Data.Status,
			Message:     parsed.Message,
			RawResponse: raw,
		}, nil
	}

	c.logger.Info("Flutterwave transfer created",
		zap.Int64("transfer_id", parsed.Data.ID),
		zap.String("status", parsed.Data.Status),
		zap.String("reference", parsed.Data.Reference))

	fee := parsed.Data.Fee
	return &entities.PaymentResult{
		Success:       true,
		TransactionID: fmt.Sprintf("%d", parsed.Data.ID),
		Status:        parsed.Data.Status,
		Fees:          &fee,
		Message:       parsed.Message,
		RawResponse:   raw,
	}, nil
}
