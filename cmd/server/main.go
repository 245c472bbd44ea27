package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/quorumtrade/quorum-api/internal/agents"
	"github.com/quorumtrade/quorum-api/internal/auth"
	"github.com/quorumtrade/quorum-api/internal/database"
	"github.com/quorumtrade/quorum-api/internal/decision"
	"github.com/quorumtrade/quorum-api/internal/execution"
	"github.com/quorumtrade/quorum-api/internal/orders"
	"github.com/quorumtrade/quorum-api/internal/policy"
	"github.com/quorumtrade/quorum-api/internal/riskdata"
	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the decision pipeline API server with graceful
// shutdown support. It wires the policy engine, the three analysis agents,
// the consensus-driven orchestrator and the execution adapter.
func main() {
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	router := gin.Default()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "quorum-secret-key"
	}

	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	sink := telemetry.NewStore(db)
	telemetryHandlers := telemetry.NewGinHandlers(sink)

	riskStore := riskdata.NewStore(db)
	policyService := policy.NewService(db, riskStore, sink)
	policyHandlers := policy.NewGinHandlers(policyService)

	orderStore := orders.NewStore(db)
	orderHandlers := orders.NewGinHandlers(orderStore)

	gateway := execution.NewSimulatedGateway(0)
	breaker := execution.NewCircuitBreaker(sink)
	adapter := execution.NewAdapter(orderStore, gateway, breaker, policyService, sink)
	executionHandlers := execution.NewGinHandlers(adapter)
	policyService.RegisterEmergencyStop(adapter.EmergencyStop)

	signals := agents.NewSimulatedSignalProvider(0)
	calendar := agents.NewSessionCalendar()
	strategyAgent := agents.NewStrategyAgent(signals)
	riskAgent := agents.NewRiskAgent(riskStore)
	validationAgent := agents.NewValidationAgent(calendar, policyService, orderStore)

	decisionService := decision.NewService(
		db,
		policyService,
		strategyAgent,
		riskAgent,
		validationAgent,
		signals,
		orderStore,
		sink,
	)
	decisionHandlers := decision.NewGinHandlers(decisionService)

	// Reconcile open orders against the broker in the background
	reconciler := execution.NewReconciler(adapter, orderStore)
	reconcilerCtx, reconcilerCancel := context.WithCancel(context.Background())
	defer reconcilerCancel()

	go reconciler.Start(reconcilerCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	setupRoutes(router, jwtSecret, authHandlers, decisionHandlers, orderHandlers,
		executionHandlers, policyHandlers, telemetryHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Decision and order routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
// - /metrics: Prometheus text exposition
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	decisionHandlers *decision.GinHandlers,
	orderHandlers *orders.GinHandlers,
	executionHandlers *execution.GinHandlers,
	policyHandlers *policy.GinHandlers,
	telemetryHandlers *telemetry.GinHandlers,
) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Decision routes
		decisions := v1.Group("/decisions")
		decisions.Use(middleware.JWTAuth(jwtSecret))
		{
			decisions.POST("", decisionHandlers.CreateDecisionHandler())
			decisions.GET("/:client_order_id", decisionHandlers.GetDecisionHandler())
		}

		// Order routes
		ordersGroup := v1.Group("/orders")
		ordersGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup.GET("/:client_order_id", orderHandlers.GetOrderHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/execution/:client_order_id", executionHandlers.ExecuteOrderHandler())
			internal.POST("/policy/:account_id/kill-switch", policyHandlers.ActivateKillSwitchHandler())
			internal.GET("/policy/:account_id", policyHandlers.GetConfigHandler())
			internal.GET("/telemetry/:account_id", telemetryHandlers.QueryEventsHandler())
		}
	}
}
