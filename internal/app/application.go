package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/payout-service/payout_service/internal/api/handlers/admin"
	"github.com/payout-service/payout_service/internal/api/handlers/webhooks"
	"github.com/payout-service/payout_service/internal/api/handlers/withdrawals"
	"github.com/payout-service/payout_service/internal/api/routes"
	"github.com/payout-service/payout_service/internal/domain/entities"
	"github.com/payout-service/payout_service/internal/domain/services/audit"
	"github.com/payout-service/payout_service/internal/domain/services/payout"
	"github.com/payout-service/payout_service/internal/infrastructure/adapters"
	"github.com/payout-service/payout_service/internal/infrastructure/adapters/flutterwave"
	"github.com/payout-service/payout_service/internal/infrastructure/adapters/wise"
	"github.com/payout-service/payout_service/internal/infrastructure/config"
	"github.com/payout-service/payout_service/internal/infrastructure/database"
	infrarepos "github.com/payout-service/payout_service/internal/infrastructure/repositories"
	"github.com/payout-service/payout_service/internal/workers/auto_payment"
	"github.com/payout-service/payout_service/pkg/auth"
	"github.com/payout-service/payout_service/pkg/logger"
	"github.com/payout-service/payout_service/pkg/metrics"
)

// Application wires configuration, storage, providers, services,
// workers and the HTTP server together.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *sqlx.DB
	redis  *redis.Client
	server *http.Server

	scheduler *auto_payment.Scheduler
}

// NewApplication creates an empty application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration and builds every dependency. Nothing
// is started yet; Start does that.
func (app *Application) Initialize() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg

	log := logger.New(cfg.LogLevel, cfg.Environment)
	app.log = log

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = redisClient

	// Repositories
	withdrawalRepo := infrarepos.NewWithdrawalRepository(db)
	balanceRepo := infrarepos.NewBalanceRepository(db)
	configRepo := infrarepos.NewPaymentConfigRepository(db)
	auditRepo := infrarepos.NewAuditRepository(db)
	eventStore := infrarepos.NewWebhookEventStore(redisClient)

	// Provider adapters
	wiseClient := wise.NewClient(cfg.Wise, log.Zap())
	flutterwaveClient := flutterwave.NewClient(cfg.Flutterwave, log.Zap())
	processors := map[entities.Provider]payout.PaymentProcessor{
		entities.ProviderWise:        wiseClient,
		entities.ProviderFlutterwave: flutterwaveClient,
	}

	emailService, err := adapters.NewEmailService(log.Zap(), adapters.EmailServiceConfig{
		Provider:    cfg.Email.Provider,
		APIKey:      cfg.Email.APIKey,
		FromEmail:   cfg.Email.FromEmail,
		FromName:    cfg.Email.FromName,
		Environment: cfg.Environment,

		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUsername: cfg.Email.SMTPUsername,
		SMTPPassword: cfg.Email.SMTPPassword,
		SMTPUseTLS:   cfg.Email.SMTPUseTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to create email service: %w", err)
	}

	// Services
	auditService := audit.NewService(auditRepo, log.Zap())
	payoutService := payout.NewService(
		withdrawalRepo,
		balanceRepo,
		configRepo,
		eventStore,
		processors,
		auditService,
		emailService,
		log,
		cfg.Webhook.EventRetention,
	)

	// Workers
	if cfg.Scheduler.Enabled {
		app.scheduler = auto_payment.NewScheduler(
			auto_payment.Config{
				CronSpec:       cfg.Scheduler.CronSpec,
				BatchSize:      cfg.Scheduler.BatchSize,
				InterItemDelay: cfg.Scheduler.InterItemDelay,
			},
			payoutService,
			withdrawalRepo,
			auditService,
			log,
		)
	}

	app.initializeServer(payoutService, auditService)
	return nil
}

// initializeServer builds the gin engine and the HTTP server.
func (app *Application) initializeServer(payoutService *payout.Service, auditService *audit.Service) {
	if app.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtService := auth.NewJWTService(app.cfg.Auth.JWTSecret, 0)

	router := gin.New()
	router.Use(gin.Recovery())

	routes.Register(router, routes.Handlers{
		Withdrawals: withdrawals.NewHandler(payoutService, app.log.Zap()),
		Admin:       admin.NewHandler(payoutService, auditService, app.log.Zap()),
		Wise: webhooks.NewWiseWebhookHandler(
			payoutService,
			app.log.Zap(),
			app.cfg.Wise.WebhookSecret,
			app.cfg.Webhook.SkipVerification,
		),
		Flutterwave: webhooks.NewFlutterwaveWebhookHandler(
			payoutService,
			app.log.Zap(),
			app.cfg.Flutterwave.VerifHash,
		),
	}, jwtService, app.log.Zap())

	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(app.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(app.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

// Start begins serving HTTP traffic and starts background workers.
func (app *Application) Start() error {
	if app.scheduler != nil {
		if err := app.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start payment scheduler: %w", err)
		}
		app.log.Info("Automatic payment scheduler started",
			"cron", app.cfg.Scheduler.CronSpec,
			"batch_size", app.cfg.Scheduler.BatchSize,
		)
	}

	go func() {
		app.log.Info("Starting server",
			"port", app.cfg.Server.Port,
			"environment", app.cfg.Environment,
		)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.Fatal("Failed to start server", "error", err)
		}
	}()

	go app.collectPoolMetrics()

	return nil
}

// collectPoolMetrics periodically exports database pool gauges.
func (app *Application) collectPoolMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := app.db.Stats()
		metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
		metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
		metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
	}
}

// Shutdown stops the scheduler, drains the HTTP server and closes
// connections.
func (app *Application) Shutdown() error {
	app.log.Info("Shutting down server...")

	if app.scheduler != nil {
		if err := app.scheduler.Shutdown(30 * time.Second); err != nil {
			app.log.Warn("Error stopping payment scheduler", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.Error("Server forced to shutdown", "error", err)
	}

	if err := app.redis.Close(); err != nil {
		app.log.Warn("Error closing redis client", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.log.Warn("Error closing database", "error", err)
	}

	app.log.Info("Server exited gracefully")
	return nil
}

// WaitForShutdown blocks until an interrupt or termination signal.
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
