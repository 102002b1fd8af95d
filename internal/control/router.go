package control

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/router"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/telemetry"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// SetupRouter configures the control surface routes
func SetupRouter(logger *slog.Logger, h *Handler) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(router.LoggerMiddleware(logger))
	r.Use(router.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "worker-service",
		})
	})
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	ctl := r.Group("/control")
	{
		ctl.POST("/messages", h.PostMessage)
		ctl.GET("/state", h.GetState)
		ctl.GET("/snapshot", h.GetSnapshot)
		ctl.GET("/events", h.StreamEvents)

		ctl.POST("/chat/start", h.Action(domain.ControlStartChatPolling))
		ctl.POST("/chat/stop", h.Action(domain.ControlStopChatPolling))
		ctl.POST("/video/start", h.Action(domain.ControlStartVideoPolling))
		ctl.POST("/video/stop", h.Action(domain.ControlStopVideoPolling))
		ctl.POST("/panel/open", h.Action(domain.ControlPanelOpen))
		ctl.POST("/panel/closed", h.Action(domain.ControlPanelClosed))
		ctl.POST("/reset", h.Action(domain.ControlResetWorker))
	}

	return r
}
