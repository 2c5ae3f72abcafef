// Package server
//
// @title CryptoPilot API
// @version 1.0
// @description Flash token dashboard API
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cryptopilot-dev/cryptopilot/internal/auth"
	"github.com/cryptopilot-dev/cryptopilot/internal/config"
	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
	"github.com/cryptopilot-dev/cryptopilot/internal/insights"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
	"github.com/cryptopilot-dev/cryptopilot/internal/tokens"
)

// Server represents the HTTP server
type Server struct {
	router          *gin.Engine
	db              *gorm.DB
	config          *config.Config
	logger          zerolog.Logger
	validator       *validator.Validate
	asynqClient     *asynq.Client
	verifier        idp.Verifier
	insightsService *insights.Service
	tokensService   *tokens.Service
	version         string
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	// Initialize database with production settings
	db, err := initDatabase(cfg, zlog)
	if err != nil {
		return nil, err
	}

	// Run database migrations
	if err := models.AutoMigrate(db); err != nil {
		return nil, err
	}

	// Load or bootstrap the singleton config row; the JWT secret is
	// auto-generated on first start
	appConfig, err := loadOrCreateConfig(db)
	if err != nil {
		return nil, err
	}
	auth.InitializeJWT(appConfig.JWTSecret)

	// Initialize validator
	validate := validator.New()

	validate.RegisterValidation("tokensymbol", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if len(value) < 2 || len(value) > 8 {
			return false
		}
		for _, char := range value {
			if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9')) {
				return false
			}
		}
		return true
	})

	// Initialize Asynq client for enqueueing tasks
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Redis.Address,
	})

	// Market catalog + insights service
	catalog, err := insights.LoadCatalog()
	if err != nil {
		return nil, err
	}
	insightsService := insights.NewService(db, catalog, zlog)

	// Token ledger service
	tokensService := tokens.NewService(db, insightsService, zlog)

	// Provider token verifier for the sync endpoints
	verifier := idp.NewHTTPVerifier(
		cfg.Firebase.APIKey,
		cfg.Firebase.BaseURL,
		cfg.Supabase.ProjectURL,
		cfg.Supabase.AnonKey,
	)

	// Create server
	server := &Server{
		db:              db,
		config:          cfg,
		logger:          zlog,
		validator:       validate,
		asynqClient:     asynqClient,
		verifier:        verifier,
		insightsService: insightsService,
		tokensService:   tokensService,
		version:         version,
	}

	// Setup router
	server.setupRouter()

	return server, nil
}

// loadOrCreateConfig returns the singleton config row, creating it with
// a fresh JWT secret on first start
func loadOrCreateConfig(db *gorm.DB) (*models.Config, error) {
	var appConfig models.Config
	err := db.First(&appConfig).Error
	if err == nil {
		return &appConfig, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}

	appConfig = models.Config{
		JWTSecret:              hex.EncodeToString(secretBytes),
		InsightRefreshSchedule: "0 * * * *", // hourly
	}
	if err := db.Create(&appConfig).Error; err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	return &appConfig, nil
}

// initDatabase initializes the database connection with production settings
func initDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns    = 8
		maxIdleConns    = 4
		connMaxLifetime = 300  // 5 minutes
		busyTimeout     = 5000 // 5 seconds
	)

	// Open database connection
	db, err := gorm.Open(sqlite.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL mode must be set first for concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=1",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	return db, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// CORS middleware
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint (no auth required)
	s.router.GET("/health", s.healthCheck)

	// Public auth endpoints (no auth required)
	s.router.POST("/api/auth/login", s.login)
	s.router.POST("/api/auth/register", s.register)
	s.router.POST("/api/auth/firebase-sync", s.firebaseSync)
	s.router.POST("/api/auth/supabase-sync", s.supabaseSync)
	s.router.POST("/api/auth/verify-email", s.verifyEmail)

	// Authenticated API routes
	api := s.router.Group("/api")
	api.Use(AuthMiddleware(s.db, s.logger))
	{
		// Auth endpoints
		api.GET("/auth/me", s.getCurrentUser)
		api.POST("/auth/logout", s.logout)
		api.POST("/auth/resend-verification", s.resendVerification)

		// Two-factor auth
		api.POST("/2fa/setup", s.setupTwoFactor)
		api.POST("/2fa/enable", s.enableTwoFactor)
		api.POST("/2fa/disable", s.disableTwoFactor)

		// API keys
		api.GET("/keys", s.listAPIKeys)
		api.POST("/keys", s.createAPIKey)
		api.DELETE("/keys/:id", s.deleteAPIKey)

		// Token operations
		api.GET("/tokens/balances", s.listBalances)
		api.POST("/tokens/generate", s.generateTokens)
		api.POST("/tokens/convert", s.convertTokens)
		api.POST("/tokens/transfer", s.transferTokens)
		api.GET("/transactions", s.listTransactions)

		// Market insights
		api.GET("/insights", s.listInsights)
		api.GET("/market", s.listMarket)

		// Insight refresh configuration (admin only)
		configRoutes := api.Group("/config")
		configRoutes.Use(AdminOnlyMiddleware(s.logger))
		{
			configRoutes.GET("", s.getConfig)
			configRoutes.PATCH("", s.updateConfig)
		}
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "cryptopilot-api",
		"version":   s.version,
	})
}

// GetDB returns the database connection for use by workers
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// InsightsService returns the insights service for use by workers
func (s *Server) InsightsService() *insights.Service {
	return s.insightsService
}

// Router returns the configured gin engine (used by tests)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	port := ":" + s.config.Server.Port

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              port,
		Handler:           s.router,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       300 * time.Second,
	}

	// Start server in goroutine
	go func() {
		s.logger.Info().Str("port", port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	// Close Asynq client
	if err := s.asynqClient.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Error closing Asynq client")
	}

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.logger.Info().Msg("Server shutdown complete")

	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		}
	}

	return nil
}
