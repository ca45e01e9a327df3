// Package webhooks receives provider delivery notifications. Handlers
// verify authenticity, normalize the payload and hand the event to the
// payout service; everything after signature verification answers 200
// so providers stop redelivering events we have already absorbed.
package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/services/payout"
)

// EventApplier settles a normalized provider event.
type EventApplier interface {
	ApplyProviderEvent(ctx context.Context, event *entities.ProviderEvent) error
}

// WiseWebhookHandler handles Wise transfer state-change notifications.
type WiseWebhookHandler struct {
	applier          EventApplier
	logger           *zap.Logger
	webhookSecret    string
	skipVerification bool // development/testing only
}

// NewWiseWebhookHandler creates a new Wise webhook handler.
func NewWiseWebhookHandler(applier EventApplier, logger *zap.Logger, webhookSecret string, skipVerification bool) *WiseWebhookHandler {
	return &WiseWebhookHandler{
		applier:          applier,
		logger:           logger,
		webhookSecret:    webhookSecret,
		skipVerification: skipVerification,
	}
}

// wiseWebhookPayload is the transfers#state-change envelope.
type wiseWebhookPayload struct {
	Data struct {
		Resource struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"resource"`
		CurrentState string `json:"current_state"`
		OccurredAt   string `json:"occurred_at"`
	} `json:"data"`
	SubscriptionID string `json:"subscription_id"`
	EventType      string `json:"event_type"`
	SentAt         string `json:"sent_at"`
}

// HandleWebhook handles Wise transfer state changes.
// POST /webhooks/wise
func (h *WiseWebhookHandler) HandleWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	signature := c.GetHeader("X-Signature-SHA256")
	if !h.verifySignature(signature, rawBody) {
		h.logger.Warn("Invalid Wise webhook signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload wiseWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Error("Failed to parse Wise webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	eventID := c.GetHeader("X-Delivery-Id")
	if eventID == "" {
		// Fall back to a deterministic key so redeliveries still dedup.
		eventID = strconv.FormatInt(payload.Data.Resource.ID, 10) + ":" + payload.Data.CurrentState
	}

	h.logger.Info("Received Wise webhook",
		zap.String("event_id", eventID),
		zap.String("event_type", payload.EventType),
		zap.Int64("transfer_id", payload.Data.Resource.ID),
		zap.String("current_state", payload.Data.CurrentState))

	if payload.EventType != "transfers#state-change" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	event := &entities.ProviderEvent{
		Provider:   entities.ProviderWise,
		EventID:    eventID,
		EventType:  payload.EventType,
		TransferID: strconv.FormatInt(payload.Data.Resource.ID, 10),
		RawState:   payload.Data.CurrentState,
		Status:     payout.MapWiseTransferState(payload.Data.CurrentState),
		ReceivedAt: time.Now().UTC(),
		RawPayload: rawBody,
	}

	if err := h.applier.ApplyProviderEvent(c.Request.Context(), event); err != nil {
		if err == entities.ErrDuplicateWebhookEvent {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
		// Acknowledge anyway. The dedup claim was released, so Wise's
		// own redelivery will retry the effect; a 5xx here would only
		// add a second retry loop.
		h.logger.Error("Failed to apply Wise event",
			zap.String("event_id", eventID),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *WiseWebhookHandler) verifySignature(signature string, body []byte) bool {
	if h.webhookSecret == "" {
		if h.skipVerification {
			h.logger.Warn("Wise webhook secret not configured - SKIPPING VERIFICATION (development mode)")
			return true
		}
		h.logger.Error("Wise webhook secret not configured - rejecting webhook")
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
