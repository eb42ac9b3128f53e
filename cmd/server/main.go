package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	conversationmodels "converso/backend/conversation/models"
	"converso/backend/pkg/config"
	"converso/backend/pkg/di"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/router"
	"converso/backend/pkg/secrets"
	"converso/backend/shared/observability"
	usermodels "converso/backend/user/models"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	appLogger := logger.New(logConfig)
	logger.SetGlobal(appLogger)

	appLogger.Info("Starting application", "env", cfg.Server.Env)

	if err := secrets.Init(appLogger); err != nil {
		appLogger.Warn("Secrets manager unavailable, using environment variables", "error", err.Error())
	}

	shutdownTracing := observability.SetupTracing("converso-backend")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	db, err := config.NewDB()
	if err != nil {
		appLogger.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	if err := db.AutoMigrate(
		&usermodels.User{},
		&conversationmodels.Conversation{},
		&conversationmodels.Message{},
	); err != nil {
		appLogger.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_user_activity ON conversations(user_id, last_activity_at DESC)").Error; err != nil {
		appLogger.LogError(err, "Failed to create conversation activity index")
	}

	diConfig := di.DefaultConfig()
	diConfig.LoggerConfig = logConfig

	container, err := di.New(db, diConfig)
	if err != nil {
		appLogger.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	container.HealthChecker.Start()

	r := router.New(container)
	r.SetupRoutes()

	if schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH"); schemaPath != "" {
		if err := r.AddOpenAPIValidation(schemaPath); err != nil {
			appLogger.LogError(err, "Failed to enable OpenAPI validation", "schema", schemaPath)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r.Engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		appLogger.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.LogError(err, "Server forced to shutdown")
	}

	appLogger.Info("Server exited gracefully")
}
