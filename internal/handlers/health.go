package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/serenitylabs/serenity/internal/models"
)

// Health handles health check requests. The store is pinged when a run
// service is attached; a failing store reports degraded with 503.
func (h *Handler) Health(c *fiber.Ctx) error {
	resp := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   Version,
		Store:     h.storeType,
		Queue:     h.queueType,
	}

	if h.runService != nil {
		if err := h.runService.Ping(c.UserContext()); err != nil {
			h.logger.Warn("Store health check failed", "store", h.storeType, "error", err)
			resp.Status = "degraded"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}

	return c.JSON(resp)
}

// NotFound handles 404 errors
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "NOT_FOUND",
			Message: "Route not found",
			Path:    c.Path(),
		},
	})
}
