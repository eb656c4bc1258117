package models

import (
	"github.com/serenitylabs/serenity/internal/analytics/forecast"
	"github.com/serenitylabs/serenity/internal/engine"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Queue     string `json:"queue"`
}

// ChartResponse carries the chart rows of one model
type ChartResponse struct {
	RunID string            `json:"run_id"`
	Model forecast.Model    `json:"model"`
	Name  string            `json:"name"`
	Rows  []engine.ChartRow `json:"rows"`
	Error string            `json:"error,omitempty"`
}

// ModelInfo describes one available forecasting model
type ModelInfo struct {
	Model forecast.Model `json:"model"`
	Name  string         `json:"name"`
}

// ModelListResponse represents list models response
type ModelListResponse struct {
	Models []ModelInfo `json:"models"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
