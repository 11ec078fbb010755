package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/fiscal"
	"bitbucket.org/mmdatafocus/pos_backend/middlewares"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/reports"
	"bitbucket.org/mmdatafocus/pos_backend/repository"
	"bitbucket.org/mmdatafocus/pos_backend/repository/memory"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
)

const defaultPort = "8080"

// app holds what the handlers need. ledger and reports are set once the store
// is connected; ready is flipped after that.
type app struct {
	logger  *logrus.Logger
	ready   atomic.Bool
	ledger  *workflow.Ledger
	reports *reports.Aggregator
}

func newApp(store repository.Store, logger *logrus.Logger) *app {
	a := &app{logger: logger}
	a.attach(store)
	return a
}

func (a *app) attach(store repository.Store) {
	a.ledger = newLedger(store, a.logger)
	a.reports = reports.NewAggregator(store, config.RedisCache{}, a.logger)
	a.ready.Store(true)
}

func newLedger(store repository.Store, logger *logrus.Logger) *workflow.Ledger {
	allocator := workflow.NewReceiptNumberAllocator(
		config.NumberingMaxRetries(),
		config.NewRedisLocker(nil),
		config.RedisCache{},
		logger,
	)
	opts := []workflow.Option{
		workflow.WithNumbering(allocator),
		workflow.WithFiscalCUIT(config.FiscalCUIT()),
	}
	if url := config.FiscalSidecarURL(); url != "" {
		opts = append(opts, workflow.WithFiscalAuthority(fiscal.NewSidecarClient(url, config.FiscalTimeout()), nil))
	}
	return workflow.NewLedger(store, logger, opts...)
}

// readinessGate answers 503 until the store is attached.
func (a *app) readinessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.ready.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service is starting"})
			return
		}
		c.Next()
	}
}

func (a *app) healthHandler(c *gin.Context) {
	if !a.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; elsewhere allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else if allowedOrigins != "" {
		corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationIdHeader)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.CorrelationIdHeader)
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return corsConfig
}

func rateLimiter() gin.HandlerFunc {
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	windowSec := int64(60)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			windowSec = n
		}
	}
	return middlewares.NewRateLimiter(config.GetRedisDB, limit, time.Duration(windowSec)*time.Second).Middleware()
}

func newRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(cors.New(corsConfig()))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		r.Use(rateLimiter())
	}
	r.Use(middlewares.ErrorLogger(a.logger))
	r.Use(gin.Recovery())

	r.GET("/health", a.healthHandler)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.POST("/pubsub/fiscal", a.readinessGate(), a.fiscalPubSubHandler)

	api := r.Group("/api", a.readinessGate(), middlewares.AuthMiddleware())
	{
		api.POST("/sales", a.createSaleHandler)
		api.GET("/sales/:id", a.getSaleHandler)
		api.POST("/sales/:id/payments", a.salePaymentHandler)
		api.POST("/sales/:id/approve", a.approveSaleHandler)
		api.POST("/sales/:id/complete", a.completeSaleHandler)
		api.POST("/sales/:id/reject", a.rejectSaleHandler)
		api.POST("/sales/:id/annul", a.annulSaleHandler)
		api.POST("/sales/:id/authorize", a.authorizeSaleHandler)
		api.POST("/budgets/:id/convert", a.convertBudgetHandler)

		api.POST("/cash-registers", a.openCashRegisterHandler)
		api.GET("/cash-registers/:id", a.getCashRegisterHandler)
		api.POST("/cash-registers/:id/movements", a.cashMovementHandler)
		api.POST("/cash-registers/:id/close", a.closeCashRegisterHandler)

		api.POST("/current-accounts", a.openCurrentAccountHandler)
		api.GET("/current-accounts/:id", a.getCurrentAccountHandler)
		api.POST("/current-accounts/:id/payments", a.accountPaymentHandler)
		api.POST("/current-accounts/:id/adjustments", a.accountAdjustmentHandler)
		api.POST("/current-accounts/:id/status", a.accountStatusHandler)

		api.POST("/stock/adjustments", a.stockAdjustmentHandler)
		api.POST("/stock/minimum", a.minimumStockHandler)

		api.POST("/branches", a.createBranchHandler)
		api.POST("/receipt-type-settings", a.createReceiptTypeSettingHandler)
		api.POST("/products", a.createProductHandler)
		api.POST("/customers", a.createCustomerHandler)
		api.POST("/suppliers", a.createSupplierHandler)

		api.GET("/reports/branches", a.branchReportHandler)
		api.GET("/reports/branches.xlsx", a.branchReportXLSXHandler)

		api.POST("/ops/reconcile", a.reconcileHandler)
		api.POST("/ops/fiscal-backfill", a.fiscalBackfillHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// openStore connects the configured backend. The MySQL path blocks until the
// database answers.
func openStore(logger *logrus.Logger) (repository.Store, func(), error) {
	if config.StoreDriver() == config.StoreDriverMemory {
		logger.WithFields(logrus.Fields{"field": "store"}).Warn("STORE_DRIVER=memory; data is lost on restart")
		return memory.New(memory.WithLockTimeout(config.StockLockTimeout())), func() {}, nil
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	// AutoMigrate can block tables; large deployments run it as a separate job.
	if !config.SkipMigrations() {
		if err := models.MigrateTable(db); err != nil {
			return nil, nil, err
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repository.NewGormStore(db), closeFn, nil
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Listen first so the platform sees the revision as started; app
	// endpoints answer 503 until the store is attached.
	a := &app{logger: logger}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: otelhttp.NewHandler(newRouter(a), "pos-ledger"),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	if config.StoreDriver() == config.StoreDriverMySQL || os.Getenv("REDIS_ADDRESS") != "" {
		go config.ConnectRedisWithRetry(sigCtx)
	}

	store, closeStore, err := openStore(logger)
	if err != nil {
		config.LogError(logger, "server.go", "main", "openStore", nil, err)
		os.Exit(1)
	}
	defer closeStore()
	a.attach(store)

	if err := a.ledger.SeedDefaults(sigCtx); err != nil {
		config.LogError(logger, "server.go", "main", "SeedDefaults", nil, err)
	}

	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	if !config.OutboxDispatcherDisabled() {
		var publisher workflow.Publisher = workflow.DirectPublisher{Ledger: a.ledger}
		if config.PubSubConfigured() {
			publisher = workflow.PubSubPublisher{}
		}
		go workflow.NewOutboxDispatcher(store, publisher, logger).Run(dispatcherCtx)
	} else {
		logger.WithFields(logrus.Fields{"field": "outbox"}).Warn("OUTBOX_DISPATCHER_DISABLED=true; fiscal outbox is not drained by this instance")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.ClosePubSub()
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
