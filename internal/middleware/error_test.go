package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenitylabs/serenity/internal/logging"
	"github.com/serenitylabs/serenity/internal/models"
	"github.com/serenitylabs/serenity/internal/services"
)

func TestErrorHandler(t *testing.T) {
	logger := logging.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{
			name:           "bad_request",
			err:            fiber.ErrBadRequest,
			expectedStatus: fiber.StatusBadRequest,
			expectedCode:   "BAD_REQUEST",
			expectedMsg:    "Bad Request",
		},
		{
			name:           "body_too_large",
			err:            fiber.ErrRequestEntityTooLarge,
			expectedStatus: fiber.StatusRequestEntityTooLarge,
			expectedCode:   "REQUEST_ENTITY_TOO_LARGE",
			expectedMsg:    "Request Entity Too Large",
		},
		{
			name:           "teapot",
			err:            fiber.NewError(fiber.StatusTeapot, "I'm a teapot"),
			expectedStatus: fiber.StatusTeapot,
			expectedCode:   "IM_A_TEAPOT",
			expectedMsg:    "I'm a teapot",
		},
		{
			name:           "unknown_status",
			err:            fiber.NewError(599, "odd"),
			expectedStatus: 599,
			expectedCode:   "ERROR",
			expectedMsg:    "odd",
		},
		{
			name:           "service_error",
			err:            services.NewServiceError(services.CodeRunNotFound, "run not found"),
			expectedStatus: fiber.StatusInternalServerError,
			expectedCode:   services.CodeRunNotFound,
			expectedMsg:    "run not found",
		},
		{
			name:           "generic_error",
			err:            errors.New("something went wrong"),
			expectedStatus: fiber.StatusInternalServerError,
			expectedCode:   services.CodeInternal,
			expectedMsg:    "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
			app.Get("/test", func(c *fiber.Ctx) error {
				return tt.err
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var errResp models.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, tt.expectedCode, errResp.Error.Code)
			assert.Equal(t, tt.expectedMsg, errResp.Error.Message)
			assert.Equal(t, "/test", errResp.Error.Path)
		})
	}
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", codeForStatus(fiber.StatusNotFound))
	assert.Equal(t, "UNPROCESSABLE_ENTITY", codeForStatus(fiber.StatusUnprocessableEntity))
	assert.Equal(t, "NON_AUTHORITATIVE_INFORMATION", codeForStatus(fiber.StatusNonAuthoritativeInformation))
	assert.Equal(t, "ERROR", codeForStatus(999))
}
