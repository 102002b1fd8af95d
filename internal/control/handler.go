// Package control serves the worker's control surface over HTTP.
package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/events"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// Controller is the part of the worker the control surface drives
type Controller interface {
	HandleControl(ctx context.Context, kind domain.ControlKind) (domain.PollingView, error)
	Snapshot(ctx context.Context) (worker.Snapshot, error)
}

// Handler handles control surface HTTP requests
type Handler struct {
	logger     *slog.Logger
	controller Controller
	hub        *events.Hub
}

// NewHandler creates a new Handler instance
func NewHandler(logger *slog.Logger, controller Controller, hub *events.Hub) *Handler {
	return &Handler{
		logger:     logger,
		controller: controller,
		hub:        hub,
	}
}

// MessageRequest is the body of POST /control/messages
type MessageRequest struct {
	Type string `json:"type" binding:"required"`
}

// PostMessage handles POST /control/messages
func (h *Handler) PostMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	kind, err := domain.ParseControlKind(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.respond(c, kind)
}

// Action returns a handler that applies a fixed control message
func (h *Handler) Action(kind domain.ControlKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.respond(c, kind)
	}
}

func (h *Handler) respond(c *gin.Context, kind domain.ControlKind) {
	view, err := h.controller.HandleControl(c.Request.Context(), kind)
	if err != nil {
		h.logger.Error("Control message failed",
			slog.String("type", string(kind)),
			slog.Any("error", err),
		)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnknownControl) || errors.Is(err, domain.ErrInvalidMode) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetState handles GET /control/state
func (h *Handler) GetState(c *gin.Context) {
	h.respond(c, domain.ControlGetPollingState)
}

// GetSnapshot handles GET /control/snapshot
func (h *Handler) GetSnapshot(c *gin.Context) {
	snap, err := h.controller.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load snapshot", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load worker state"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// StreamEvents handles GET /control/events as server-sent events
func (h *Handler) StreamEvents(c *gin.Context) {
	ch, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	h.logger.Debug("Event stream opened", slog.String("ip", c.ClientIP()))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}
