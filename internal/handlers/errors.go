package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/serenitylabs/serenity/internal/models"
	"github.com/serenitylabs/serenity/internal/services"
)

// Error codes produced by the HTTP layer
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidFile     = "INVALID_FILE"
)

// statusForCode maps a service error code to an HTTP status
func statusForCode(code string) int {
	switch code {
	case services.CodeMissingSource, services.CodeInvalidOptions,
		services.CodeInvalidModel, services.CodeInvalidFormat:
		return fiber.StatusBadRequest
	case services.CodeEmptyMerge, services.CodeNoModelFitted, services.CodeRunFailed:
		return fiber.StatusUnprocessableEntity
	case services.CodeRunNotFound:
		return fiber.StatusNotFound
	case services.CodeRunNotReady, services.CodeRunInProgress:
		return fiber.StatusConflict
	case services.CodeRunExpired:
		return fiber.StatusGone
	case services.CodeRunTimeout:
		return fiber.StatusGatewayTimeout
	case services.CodeQueueFull:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse
func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	var verrs models.ValidationErrors
	if errors.As(err, &verrs) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    CodeValidationError,
				Message: "request validation failed",
				Details: map[string]interface{}{"fields": verrs},
			},
		})
	}

	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		status := statusForCode(svcErr.Code)
		if status >= fiber.StatusInternalServerError {
			h.logger.Error("Request failed", "path", c.Path(), "code", svcErr.Code, "error", svcErr.Message)
		}
		return c.Status(status).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    svcErr.Code,
				Message: svcErr.Message,
				Details: svcErr.Details,
			},
		})
	}

	h.logger.Error("Request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    services.CodeInternal,
			Message: err.Error(),
		},
	})
}

// badRequest writes a 400 with the given code
func badRequest(c *fiber.Ctx, code, message string, details map[string]interface{}) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
