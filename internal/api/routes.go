package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/spxlabs/command-core/internal/api/handlers"
)

// HealthChecker is implemented by the storage connections.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// SetupRoutes mounts the command surface. db and redis may be nil when the
// process runs without that backing store.
func SetupRoutes(router *gin.Engine, handler *handlers.CommandHandler, db, redis HealthChecker) {
	router.Use(otelgin.Middleware("command-core"))

	router.GET("/health", healthCheck(db, redis))

	v1 := router.Group("/api/v1")
	{
		stream := v1.Group("/stream")
		{
			stream.POST("/tick", handler.ProcessTick)
			stream.GET("/snapshot", handler.GetSnapshot)
			stream.POST("/select", handler.SelectSetup)
		}

		risk := v1.Group("/risk")
		{
			risk.POST("/entry-gate", handler.EvaluateEntryGate)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.GET("/history", handler.GetTriggeredHistory)
			alerts.POST("/:id/seen", handler.MarkAlertSeen)
			alerts.POST("/:id/snooze", handler.SnoozeAlert)
			alerts.POST("/:id/mute", handler.MuteAlert)
		}

		journal := v1.Group("/journal")
		{
			journal.POST("/close", handler.CloseTrade)
			journal.GET("/summary", handler.GetJournalSummary)
			journal.GET("/artifacts", handler.GetJournalArtifacts)
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/models/refresh", handler.RefreshModels)
		}
	}
}

func healthCheck(db, redis HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "disabled",
				Redis:    "disabled",
			},
		}

		if db != nil {
			response.Services.Database = "ok"
			if err := db.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Database = "error"
				response.Status = "degraded"
			}
		}

		if redis != nil {
			response.Services.Redis = "ok"
			if err := redis.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Redis = "error"
				response.Status = "degraded"
			}
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
