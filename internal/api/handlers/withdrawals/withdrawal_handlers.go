// Package withdrawals exposes the user-facing payout endpoints.
package withdrawals

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/api/handlers/common"
	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/services/payout"
)

// Handler handles user withdrawal requests.
type Handler struct {
	payoutSvc *payout.Service
	logger    *zap.Logger
}

// NewHandler creates a new withdrawal handler.
func NewHandler(payoutSvc *payout.Service, logger *zap.Logger) *Handler {
	return &Handler{
		payoutSvc: payoutSvc,
		logger:    logger,
	}
}

// CreateWithdrawalRequest is the intake body.
type CreateWithdrawalRequest struct {
	AmountMinor     int64                   `json:"amount_minor" binding:"required,gt=0"`
	SourceCurrency  string                  `json:"source_currency" binding:"required,len=3"`
	TargetCurrency  string                  `json:"target_currency" binding:"required,len=3"`
	PaymentMethodID string                  `json:"payment_method_id" binding:"required,uuid"`
	PaymentDetails  entities.PaymentDetails `json:"payment_details" binding:"required"`
}

// CreateWithdrawal creates a new withdrawal request.
// POST /api/v1/withdrawals
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	userCtx := common.RequireUserContext(c)
	if userCtx == nil {
		return
	}

	var req CreateWithdrawalRequest
	if !common.BindAndValidate(c, &req) {
		return
	}

	userType := entities.UserType(c.GetString("user_type"))
	if !entities.ValidUserTypes[userType] {
		common.RespondForbidden(c, "Account role cannot request withdrawals")
		return
	}

	methodID, err := uuid.Parse(req.PaymentMethodID)
	if err != nil {
		common.RespondBadRequest(c, "Invalid payment_method_id")
		return
	}

	w, err := h.payoutSvc.CreateWithdrawal(c.Request.Context(), payout.CreateWithdrawalParams{
		UserID:          userCtx.UserID,
		UserType:        userType,
		AmountMinor:     req.AmountMinor,
		SourceCurrency:  req.SourceCurrency,
		TargetCurrency:  req.TargetCurrency,
		PaymentMethodID: methodID,
		PaymentDetails:  req.PaymentDetails,
	})
	if err != nil {
		h.logger.Warn("Withdrawal creation rejected",
			zap.String("user_id", userCtx.UserID.String()),
			zap.Error(err))
		common.HandleServiceError(c, err)
		return
	}

	common.RespondCreated(c, w)
}

// GetWithdrawal returns one of the caller's withdrawals.
// GET /api/v1/withdrawals/:id
func (h *Handler) GetWithdrawal(c *gin.Context) {
	userCtx := common.RequireUserContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	w, err := h.payoutSvc.GetWithdrawal(c.Request.Context(), id, &userCtx.UserID)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, w)
}

// ListWithdrawals returns the caller's withdrawals, newest first.
// GET /api/v1/withdrawals
func (h *Handler) ListWithdrawals(c *gin.Context) {
	userCtx := common.RequireUserContext(c)
	if userCtx == nil {
		return
	}

	pagination := common.ExtractPagination(c, 20, 100)
	filter := entities.WithdrawalFilter{
		UserID: &userCtx.UserID,
		Limit:  pagination.Limit,
		Offset: pagination.Offset,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := entities.WithdrawalStatus(statusStr)
		if !status.IsValid() {
			common.RespondBadRequest(c, "Invalid status filter")
			return
		}
		filter.Status = &status
	}

	list, err := h.payoutSvc.ListWithdrawals(c.Request.Context(), filter)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, gin.H{
		"withdrawals": list,
		"limit":       pagination.Limit,
		"offset":      pagination.Offset,
	})
}

// CancelWithdrawal cancels one of the caller's pending withdrawals.
// POST /api/v1/withdrawals/:id/cancel
func (h *Handler) CancelWithdrawal(c *gin.Context) {
	userCtx := common.RequireUserContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	w, err := h.payoutSvc.CancelWithdrawal(c.Request.Context(), id, userCtx.UserID)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, w)
}

// GetStatusHistory returns the lifecycle trail of a withdrawal.
// GET /api/v1/withdrawals/:id/history
func (h *Handler) GetStatusHistory(c *gin.Context) {
	userCtx := common.RequireUserContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	history, err := h.payoutSvc.GetStatusHistory(c.Request.Context(), id, &userCtx.UserID)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, gin.H{"history": history})
}

// GetBalance returns the caller's withdrawable balance.
// GET /api/v1/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userCtx := common.RequireUserContext(c)
	if userCtx == nil {
		return
	}

	balance, err := h.payoutSvc.GetBalance(c.Request.Context(), userCtx.UserID)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, balance)
}
