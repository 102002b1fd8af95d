package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/handler"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/telemetry"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger, "/extension/poll", "/health", "/metrics"))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if err := deps.Storage.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "api-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "api-service",
		})
	})
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	jobHandler := handler.NewJobHandler(deps)

	// OpenAI-style API
	v1 := r.Group("/v1")
	{
		v1.POST("/videos/generations", jobHandler.CreateVideoGeneration)
		v1.GET("/videos/generations/:job_id", jobHandler.GetVideoGeneration)
		v1.POST("/chat/completions", jobHandler.ChatCompletions)
	}

	// Worker contract
	ext := r.Group("/extension")
	{
		ext.GET("/poll", jobHandler.Poll)
		ext.POST("/complete", jobHandler.CompleteVideo)
		ext.POST("/complete/chat", jobHandler.CompleteChat)
		ext.POST("/error", jobHandler.ReportError)
	}

	r.GET("/videos/:file", jobHandler.GetVideo)

	// GET /jobs - list jobs, DELETE /jobs - clear the queue
	r.GET("/jobs", jobHandler.ListJobs)
	r.DELETE("/jobs", jobHandler.ClearJobs)

	return r
}
