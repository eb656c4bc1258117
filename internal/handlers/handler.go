package handlers

import (
	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/logging"
	"github.com/serenitylabs/serenity/internal/services"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handler contains all HTTP handlers
type Handler struct {
	logger     *logging.Logger
	runService *services.RunService
	storeType  string
	queueType  string
}

// New creates a new handler instance
func New(logger *logging.Logger, runService *services.RunService, cfg config.Config) *Handler {
	storeType := cfg.Store.Type
	if storeType == "" {
		storeType = "memory"
	}
	queueType := cfg.Queue.Type
	if queueType == "" {
		queueType = "memory"
	}

	return &Handler{
		logger:     logger,
		runService: runService,
		storeType:  storeType,
		queueType:  queueType,
	}
}
