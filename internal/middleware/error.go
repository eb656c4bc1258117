package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/serenitylabs/serenity/internal/logging"
	"github.com/serenitylabs/serenity/internal/models"
	"github.com/serenitylabs/serenity/internal/services"
)

// ErrorHandler returns the app-wide handler for errors that escape a route.
// Service errors keep their code; fiber errors get a code derived from the
// status, e.g. 413 becomes REQUEST_ENTITY_TOO_LARGE.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := services.CodeInternal
		message := "Internal Server Error"
		var details map[string]interface{}

		var fiberErr *fiber.Error
		var svcErr *services.ServiceError
		switch {
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			code = codeForStatus(status)
			message = fiberErr.Message
		case errors.As(err, &svcErr):
			code = svcErr.Code
			message = svcErr.Message
			details = svcErr.Details
		}

		fields := []interface{}{
			"path", c.Path(),
			"method", c.Method(),
			"status", status,
			"code", code,
			"error", err,
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request error", fields...)
		} else {
			logger.Warn("Request rejected", fields...)
		}

		return c.Status(status).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    code,
				Message: message,
				Path:    c.Path(),
				Details: details,
			},
		})
	}
}

// codeForStatus turns an HTTP status into an upper snake case error code
func codeForStatus(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "ERROR"
	}
	text = strings.ReplaceAll(text, "'", "")
	text = strings.ReplaceAll(text, "-", " ")
	return strings.ToUpper(strings.Join(strings.Fields(text), "_"))
}
