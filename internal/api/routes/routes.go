// Package routes wires the HTTP surface: user payout endpoints, admin
// endpoints, provider webhooks, health and metrics.
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/api/handlers/admin"
	"github.com/payout-service/payout_service/internal/api/handlers/common"
	"github.com/payout-service/payout_service/internal/api/handlers/webhooks"
	"github.com/payout-service/payout_service/internal/api/handlers/withdrawals"
	"github.com/payout-service/payout_service/internal/api/middleware"
	"github.com/payout-service/payout_service/pkg/auth"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Withdrawals *withdrawals.Handler
	Admin       *admin.Handler
	Wise        *webhooks.WiseWebhookHandler
	Flutterwave *webhooks.FlutterwaveWebhookHandler
}

// Register mounts all routes on the engine.
func Register(router *gin.Engine, h Handlers, jwtService *auth.JWTService, logger *zap.Logger) {
	router.Use(common.MaxRequestBodySizeMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks authenticate by signature, not by bearer token.
	hooks := router.Group("/webhooks")
	{
		hooks.POST("/wise", h.Wise.HandleWebhook)
		hooks.POST("/flutterwave", h.Flutterwave.HandleWebhook)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.TimeoutMiddleware(30 * time.Second))

	authed := v1.Group("")
	authed.Use(middleware.Authentication(jwtService, logger))
	{
		authed.POST("/withdrawals", h.Withdrawals.CreateWithdrawal)
		authed.GET("/withdrawals", h.Withdrawals.ListWithdrawals)
		authed.GET("/withdrawals/:id", h.Withdrawals.GetWithdrawal)
		authed.POST("/withdrawals/:id/cancel", h.Withdrawals.CancelWithdrawal)
		authed.GET("/withdrawals/:id/history", h.Withdrawals.GetStatusHistory)
		authed.GET("/balance", h.Withdrawals.GetBalance)
	}

	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.Authentication(jwtService, logger), middleware.RequireAdmin())
	{
		adminGroup.GET("/withdrawals", h.Admin.ListWithdrawals)
		adminGroup.GET("/withdrawals/stats", h.Admin.GetStats)
		adminGroup.GET("/withdrawals/:id", h.Admin.GetWithdrawal)
		adminGroup.POST("/withdrawals/:id/approve", h.Admin.ApproveWithdrawal)
		adminGroup.POST("/withdrawals/:id/reject", h.Admin.RejectWithdrawal)
		adminGroup.POST("/withdrawals/:id/process", h.Admin.ProcessWithdrawal)
		adminGroup.POST("/withdrawals/:id/confirm", h.Admin.ConfirmWithdrawal)
		adminGroup.GET("/audit-logs", h.Admin.ListAuditLogs)
		adminGroup.GET("/audit-logs/export", h.Admin.ExportAuditLogs)
		adminGroup.GET("/payment-config", h.Admin.GetPaymentConfig)
		adminGroup.PUT("/payment-config", h.Admin.UpdatePaymentConfig)
	}
}
