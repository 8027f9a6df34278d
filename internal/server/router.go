package server

import (
	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/chungtau/txn-webhook/internal/config"
	"github.com/chungtau/txn-webhook/internal/handler"
	"github.com/chungtau/txn-webhook/internal/middleware"
)

// Deps are the collaborators the HTTP layer is built from
type Deps struct {
	Config   *config.Config
	Log      *logger.Logger
	Ingester handler.Ingester
	Reader   handler.StatusReader
	Store    handler.Pinger
	Redis    *redis.Client // nil disables rate limiting
	Gatherer prometheus.Gatherer
}

// SetupRouter creates and configures the Gin router
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.Logging(deps.Log))

	healthHandler := handler.NewHealthHandler(deps.Store, deps.Redis)
	webhookHandler := handler.NewWebhookHandler(deps.Ingester)
	transactionHandler := handler.NewTransactionHandler(deps.Reader, deps.Log)
	authHandler := handler.NewAuthHandler(cfg.JWTSecret, cfg.DevMode)

	// Health check endpoints (no auth required)
	router.GET("/", healthHandler.Liveness)
	router.GET("/health", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Dev-only auth endpoint
	if cfg.DevMode {
		router.POST("/auth/dev/token", authHandler.GenerateDevToken)
	}

	v1 := router.Group("/v1")
	{
		webhooks := v1.Group("/webhooks")
		if deps.Redis != nil {
			limiter := middleware.NewRateLimiter(deps.Redis, "webhooks", cfg.RateLimitRPS, cfg.RateLimitBurst, deps.Log)
			webhooks.Use(limiter.Middleware())
		}
		webhooks.POST("/transactions", webhookHandler.Receive)

		transactions := v1.Group("/transactions")
		if cfg.AuthEnabled {
			transactions.Use(middleware.Auth(cfg.JWTSecret, middleware.ReadScope))
		}
		transactions.GET("/stats", transactionHandler.Stats)
		transactions.GET("/:transaction_id", transactionHandler.Get)
	}

	return router
}
