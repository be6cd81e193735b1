package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "warehouse-billing/api/swagger" // swagger docs
	"warehouse-billing/internal/config"
	"warehouse-billing/internal/database"
	"warehouse-billing/internal/handler"
	"warehouse-billing/internal/logger"
	"warehouse-billing/internal/metrics"
	"warehouse-billing/internal/middleware"
	"warehouse-billing/internal/repository"
	"warehouse-billing/internal/service"
	"warehouse-billing/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Warehouse Billing API
// @version         1.0
// @description     Stock ledger, billing events, exchange rates, invoices and settlement batches.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	release := os.Getenv("GIN_MODE") == gin.ReleaseMode
	auth, err := middleware.NewAuth(cfg.JWTSecret, release)
	if err != nil {
		log.Fatal("auth setup failed", zap.Error(err))
	}

	db, err := database.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	log.Info("database ready", zap.String("driver", cfg.DB.Driver))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	obs := service.Observers{Log: log, Metrics: m, Notifier: wsHub}
	settings := service.InvoiceSettings{
		Currency: cfg.Billing.InvoiceCurrency,
		FxBase:   cfg.Billing.FxBase,
		FxQuote:  cfg.Billing.FxQuote,
	}

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	stockRepo := repository.NewStockRepository(db)
	eventRepo := repository.NewBillingEventRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	seqRepo := repository.NewSequenceRepository(db)
	rateRepo := repository.NewExchangeRateRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	serviceRepo := repository.NewServiceRepository(db)
	policyRepo := repository.NewPricePolicyRepository(db)
	taxRuleRepo := repository.NewTaxRuleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)

	priceService := service.NewPriceService(serviceRepo, policyRepo, auditRepo, txManager)
	eventService := service.NewBillingEventService(eventRepo, invoiceRepo, serviceRepo, auditRepo, priceService, txManager, obs)
	rateService := service.NewExchangeRateService(rateRepo, auditRepo, txManager, obs)
	taxService := service.NewTaxService(taxRuleRepo, auditRepo, txManager, cfg.Billing.VATRate)
	ledger := service.NewStockLedger(stockRepo, txManager)
	movementService := service.NewMovementService(stockRepo, ledger, eventService, auditRepo, txManager, obs)
	invoiceService := service.NewInvoiceService(invoiceRepo, eventRepo, seqRepo, rateRepo, auditRepo, taxService, txManager, settings, obs)
	settlementService := service.NewSettlementService(settlementRepo, eventRepo, invoiceRepo, seqRepo, rateRepo, auditRepo, taxService, txManager, settings, obs)
	auditService := service.NewAuditService(auditRepo)
	statisticsService := service.NewStatisticsService(statisticsRepo)

	if release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth.Secret(), middleware.RoleAdmin, middleware.RoleManager, middleware.RoleStaff)
	})

	api := router.Group("")
	handler.NewStockHandler(movementService, auth).RegisterRoutes(api)
	handler.NewBillingEventHandler(eventService, auth).RegisterRoutes(api)
	handler.NewPricingHandler(priceService, auth).RegisterRoutes(api)
	handler.NewExchangeRateHandler(rateService, auth).RegisterRoutes(api)
	handler.NewInvoiceHandler(invoiceService, auth).RegisterRoutes(api)
	handler.NewSettlementHandler(settlementService, auth).RegisterRoutes(api)
	handler.NewTaxHandler(taxService, auth).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, auth).RegisterRoutes(api)
	handler.NewStatisticsHandler(statisticsService, auth).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
