// Package services provides the business logic layer between the HTTP
// handlers and the forecasting engine.
package services

import (
	"context"
	"errors"

	"github.com/serenitylabs/serenity/internal/engine"
	"github.com/serenitylabs/serenity/internal/models"
)

// Error codes returned by the services
const (
	CodeMissingSource  = "MISSING_SOURCE"
	CodeEmptyMerge     = "EMPTY_MERGE"
	CodeInvalidOptions = "INVALID_OPTIONS"
	CodeNoModelFitted  = "NO_MODEL_FITTED"
	CodeInvalidModel   = "INVALID_MODEL"
	CodeInvalidFormat  = "INVALID_FORMAT"
	CodeRunNotFound    = "RUN_NOT_FOUND"
	CodeRunNotReady    = "RUN_NOT_READY"
	CodeRunFailed      = "RUN_FAILED"
	CodeRunExpired     = "RUN_EXPIRED"
	CodeRunInProgress  = "RUN_IN_PROGRESS"
	CodeRunTimeout     = "RUN_TIMEOUT"
	CodeRunCancelled   = "RUN_CANCELLED"
	CodeRunInterrupted = "RUN_INTERRUPTED"
	CodeQueueFull      = "QUEUE_FULL"
	CodeSaveFailed     = "SAVE_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

// User-facing messages in Russian
const (
	messageMissingSourceRU = "Загрузите все три набора данных: Exxon, S&P 500 и WTI."
	messageEmptyMergeRU    = "Не удалось объединить данные по датам. Проверьте формат колонок."
)

// ServiceError represents a service layer error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// RunError converts the error for storage on a run
func (e *ServiceError) RunError() *models.RunError {
	return &models.RunError{Code: e.Code, Message: e.Message, Details: e.Details}
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// fromEngineError maps an engine failure to a ServiceError
func fromEngineError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	var validationErr *engine.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return NewServiceErrorWithDetails(CodeMissingSource, err.Error(), map[string]interface{}{
			"source":     validationErr.Source,
			"message_ru": messageMissingSourceRU,
		})
	case errors.Is(err, engine.ErrMissingSource):
		return NewServiceErrorWithDetails(CodeMissingSource, err.Error(), map[string]interface{}{
			"message_ru": messageMissingSourceRU,
		})
	case errors.Is(err, engine.ErrEmptyMerge):
		return NewServiceErrorWithDetails(CodeEmptyMerge, err.Error(), map[string]interface{}{
			"message_ru": messageEmptyMergeRU,
		})
	case errors.Is(err, engine.ErrInvalidOptions):
		return NewServiceError(CodeInvalidOptions, err.Error())
	case errors.Is(err, engine.ErrNoModelFitted):
		return NewServiceError(CodeNoModelFitted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewServiceError(CodeRunTimeout, "run exceeded its time limit")
	case errors.Is(err, context.Canceled):
		return NewServiceError(CodeRunCancelled, "run was cancelled")
	default:
		return NewServiceError(CodeInternal, err.Error())
	}
}
