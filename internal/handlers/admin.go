package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// TriggerCleanup removes expired runs immediately instead of waiting for
// the cleanup interval
func (h *Handler) TriggerCleanup(c *fiber.Ctx) error {
	removed := h.runService.CleanupExpired()

	h.logger.Info("Cleanup triggered", "removed", removed)

	return c.JSON(fiber.Map{
		"success": true,
		"removed": removed,
	})
}
