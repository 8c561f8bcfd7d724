package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/spxlabs/command-core/internal/api"
	"github.com/spxlabs/command-core/internal/api/handlers"
	"github.com/spxlabs/command-core/internal/config"
	"github.com/spxlabs/command-core/internal/database"
	"github.com/spxlabs/command-core/internal/logging"
	"github.com/spxlabs/command-core/internal/ml"
	"github.com/spxlabs/command-core/internal/services"
	"github.com/spxlabs/command-core/internal/store"
	"github.com/spxlabs/command-core/internal/telemetry"
)

func main() {
	// .env is optional; real deployments inject environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	tracing, err := telemetry.Setup(cfg.Telemetry.Enabled)
	if err != nil {
		logger.Fatalf("Failed to set up telemetry: %v", err)
	}

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	modelCache := ml.NewModelCache(&ml.FileWeightsSource{
		ConfidencePath: cfg.ML.ConfidenceModelPath,
		TierPath:       cfg.ML.TierModelPath,
	})

	engine := services.NewCommandEngine(cfg, store.NewRedisKV(redis.Client), modelCache, logger)
	if err := engine.Restore(context.Background()); err != nil {
		logger.WithError(err).Warn("could not restore persisted state, starting clean")
	}

	// PostgreSQL archives journal artifacts; the engine runs without it
	var db *database.PostgresDB
	var dbHealth api.HealthChecker
	if cfg.Database.Host != "" || cfg.Database.DatabaseURL != "" {
		db, err = database.NewPostgresConnection(cfg.Database)
		if err != nil {
			logger.WithError(err).Warn("PostgreSQL unavailable, journal archival disabled")
		} else {
			defer db.Close()
			dbHealth = db
			engine.SetArchiver(database.NewJournalRepository(db.Pool))
		}
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.WithError(err).Warn("Telegram notifier unavailable")
		} else {
			engine.SetNotifier(notifier)
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, handlers.NewCommandHandler(engine, logger), dbHealth, redis)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := tracing.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("telemetry shutdown failed")
	}

	logger.Info("Server exited")
}
