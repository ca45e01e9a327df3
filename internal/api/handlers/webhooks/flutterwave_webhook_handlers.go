package webhooks

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/services/payout"
)

// FlutterwaveWebhookHandler handles Flutterwave transfer notifications.
// Flutterwave authenticates deliveries with a shared verif-hash header
// rather than a payload signature.
type FlutterwaveWebhookHandler struct {
	applier   EventApplier
	logger    *zap.Logger
	verifHash string
}

// NewFlutterwaveWebhookHandler creates a new Flutterwave webhook handler.
func NewFlutterwaveWebhookHandler(applier EventApplier, logger *zap.Logger, verifHash string) *FlutterwaveWebhookHandler {
	return &FlutterwaveWebhookHandler{
		applier:   applier,
		logger:    logger,
		verifHash: verifHash,
	}
}

// flutterwaveWebhookPayload is the transfer event envelope.
type flutterwaveWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		CompleteMessage string `json:"complete_message"`
	} `json:"data"`
	EventType string `json:"event.type"`
}

// HandleWebhook handles Flutterwave transfer events.
// POST /webhooks/flutterwave
func (h *FlutterwaveWebhookHandler) HandleWebhook(c *gin.Context) {
	if h.verifHash == "" {
		h.logger.Error("Flutterwave verif-hash not configured - rejecting webhook")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	received := c.GetHeader("verif-hash")
	if subtle.ConstantTimeCompare([]byte(received), []byte(h.verifHash)) != 1 {
		h.logger.Warn("Invalid Flutterwave verif-hash")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	var payload flutterwaveWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.Error("Failed to parse Flutterwave webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.logger.Info("Received Flutterwave webhook",
		zap.String("event", payload.Event),
		zap.Int64("transfer_id", payload.Data.ID),
		zap.String("reference", payload.Data.Reference),
		zap.String("status", payload.Data.Status))

	// Flutterwave carries no delivery id; the transfer id plus the
	// reported terminal status is stable across redeliveries.
	eventID := fmt.Sprintf("%d:%s:%s", payload.Data.ID, payload.Event, payload.Data.Status)

	event := &entities.ProviderEvent{
		Provider:   entities.ProviderFlutterwave,
		EventID:    eventID,
		EventType:  payload.Event,
		TransferID: fmt.Sprintf("%d", payload.Data.ID),
		Reference:  payload.Data.Reference,
		RawState:   payload.Data.Status,
		Status:     payout.MapFlutterwaveEvent(payload.Event, payload.Data.Status),
		ReceivedAt: time.Now().UTC(),
		RawPayload: rawBody,
	}

	if err := h.applier.ApplyProviderEvent(c.Request.Context(), event); err != nil {
		if err == entities.ErrDuplicateWebhookEvent {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
		// Acknowledge anyway. The dedup claim was released, so the
		// provider's own redelivery will retry the effect.
		h.logger.Error("Failed to apply Flutterwave event",
			zap.String("event_id", eventID),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
