// Package admin exposes the operator endpoints: review decisions,
// manual processing, statistics, audit access and the payment config.
package admin

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/api/handlers/common"
	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/services/audit"
	"github.com/payout-service/payout_service/internal/domain/services/payout"
)

// Handler handles admin operations on withdrawals.
type Handler struct {
	payoutSvc *payout.Service
	auditSvc  *audit.Service
	logger    *zap.Logger
}

// NewHandler creates a new admin handler.
func NewHandler(payoutSvc *payout.Service, auditSvc *audit.Service, logger *zap.Logger) *Handler {
	return &Handler{
		payoutSvc: payoutSvc,
		auditSvc:  auditSvc,
		logger:    logger,
	}
}

// adminActor returns the audit identity of the calling admin.
func adminActor(userCtx *common.UserContext) string {
	if userCtx.Email != "" {
		return userCtx.Email
	}
	return userCtx.UserID.String()
}

// ListWithdrawals returns withdrawals matching the filter, across all users.
// GET /api/v1/admin/withdrawals
func (h *Handler) ListWithdrawals(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	pagination := common.ExtractPagination(c, 50, 200)
	filter := entities.WithdrawalFilter{
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
	if providerStr := c.Query("provider"); providerStr != "" {
		provider := entities.Provider(providerStr)
		filter.Provider = &provider
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

// GetWithdrawal returns any withdrawal with its full history.
// GET /api/v1/admin/withdrawals/:id
func (h *Handler) GetWithdrawal(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	w, err := h.payoutSvc.GetWithdrawal(c.Request.Context(), id, nil)
	if common.HandleServiceError(c, err) {
		return
	}

	history, err := h.payoutSvc.GetStatusHistory(c.Request.Context(), id, nil)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, gin.H{
		"withdrawal": w,
		"history":    history,
	})
}

// ApproveWithdrawal clears a withdrawal for processing.
// POST /api/v1/admin/withdrawals/:id/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	w, err := h.payoutSvc.ApproveWithdrawal(c.Request.Context(), id, adminActor(userCtx))
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, w)
}

// RejectWithdrawalRequest carries the mandatory rejection reason.
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required,min=3"`
}

// RejectWithdrawal declines a withdrawal and refunds the reservation.
// POST /api/v1/admin/withdrawals/:id/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	var req RejectWithdrawalRequest
	if !common.BindAndValidate(c, &req) {
		return
	}

	w, err := h.payoutSvc.RejectWithdrawal(c.Request.Context(), id, adminActor(userCtx), req.Reason)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, w)
}

// ProcessWithdrawal pushes a withdrawal to its provider now.
// POST /api/v1/admin/withdrawals/:id/process
func (h *Handler) ProcessWithdrawal(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	w, err := h.payoutSvc.ProcessWithdrawal(c.Request.Context(), id, adminActor(userCtx), entities.ActorTypeAdmin)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, w)
}

// ConfirmWithdrawal releases a withdrawal held for confirmation.
// POST /api/v1/admin/withdrawals/:id/confirm
func (h *Handler) ConfirmWithdrawal(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	id, ok := common.ParsePathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.payoutSvc.ConfirmWithdrawal(c.Request.Context(), id, adminActor(userCtx)); err != nil {
		common.HandleServiceError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{"status": "released"})
}

// GetStats returns the aggregate for a period. Defaults to the last 30 days.
// GET /api/v1/admin/withdrawals/stats
func (h *Handler) GetStats(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if s := c.Query("from"); s != "" {
		parsed, err := common.ParseTime(s)
		if err != nil {
			common.RespondBadRequest(c, "Invalid from timestamp")
			return
		}
		from = parsed
	}
	if s := c.Query("to"); s != "" {
		parsed, err := common.ParseTime(s)
		if err != nil {
			common.RespondBadRequest(c, "Invalid to timestamp")
			return
		}
		to = parsed
	}

	stats, err := h.payoutSvc.GetStats(c.Request.Context(), from, to)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, gin.H{
		"from":  from,
		"to":    to,
		"stats": stats,
	})
}

// ListAuditLogs returns audit records matching the filter.
// GET /api/v1/admin/audit-logs
func (h *Handler) ListAuditLogs(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	filter, ok := h.auditFilterFromQuery(c)
	if !ok {
		return
	}

	logs, err := h.auditSvc.GetAuditLogs(c.Request.Context(), filter)
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, gin.H{"audit_logs": logs})
}

// ExportAuditLogs streams the matching audit records as CSV or JSON.
// GET /api/v1/admin/audit-logs/export
func (h *Handler) ExportAuditLogs(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	filter, ok := h.auditFilterFromQuery(c)
	if !ok {
		return
	}
	// Exports are bounded but larger than a page.
	filter.Limit = 10000
	filter.Offset = 0

	format := c.DefaultQuery("format", "csv")
	filename := fmt.Sprintf("audit-logs-%s.%s", time.Now().UTC().Format("2006-01-02"), format)

	switch format {
	case "csv":
		data, err := h.auditSvc.ExportCSV(c.Request.Context(), filter)
		if common.HandleServiceError(c, err) {
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "text/csv", data)
	case "json":
		data, err := h.auditSvc.ExportJSON(c.Request.Context(), filter)
		if common.HandleServiceError(c, err) {
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/json", data)
	default:
		common.RespondBadRequest(c, "Unsupported export format", map[string]interface{}{"format": format})
	}
}

func (h *Handler) auditFilterFromQuery(c *gin.Context) (entities.AuditFilter, bool) {
	pagination := common.ExtractPagination(c, 50, 500)
	filter := entities.AuditFilter{
		Limit:  pagination.Limit,
		Offset: pagination.Offset,
	}

	if actionStr := c.Query("action"); actionStr != "" {
		action := entities.AuditAction(actionStr)
		filter.Action = &action
	}
	if actor := c.Query("actor"); actor != "" {
		filter.Actor = &actor
	}
	if s := c.Query("from"); s != "" {
		parsed, err := common.ParseTime(s)
		if err != nil {
			common.RespondBadRequest(c, "Invalid from timestamp")
			return filter, false
		}
		filter.From = &parsed
	}
	if s := c.Query("to"); s != "" {
		parsed, err := common.ParseTime(s)
		if err != nil {
			common.RespondBadRequest(c, "Invalid to timestamp")
			return filter, false
		}
		filter.To = &parsed
	}

	return filter, true
}

// GetPaymentConfig returns the operator config.
// GET /api/v1/admin/payment-config
func (h *Handler) GetPaymentConfig(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	cfg, err := h.payoutSvc.GetPaymentConfig(c.Request.Context())
	if common.HandleServiceError(c, err) {
		return
	}

	common.RespondSuccess(c, cfg)
}

// UpdatePaymentConfig validates and persists the operator config.
// PUT /api/v1/admin/payment-config
func (h *Handler) UpdatePaymentConfig(c *gin.Context) {
	userCtx := common.RequireAdminContext(c)
	if userCtx == nil {
		return
	}

	before, err := h.payoutSvc.GetPaymentConfig(c.Request.Context())
	if common.HandleServiceError(c, err) {
		return
	}

	var cfg entities.PaymentConfig
	if !common.BindAndValidate(c, &cfg) {
		return
	}
	if err := cfg.Validate(); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	actor := adminActor(userCtx)
	if err := h.payoutSvc.UpdatePaymentConfig(c.Request.Context(), &cfg, actor); err != nil {
		common.HandleServiceError(c, err)
		return
	}

	h.auditSvc.LogConfigUpdate(c.Request.Context(), actor, before, &cfg)
	common.RespondSuccess(c, cfg)
}
