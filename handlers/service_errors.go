package handlers

import (
	"net/http"

	"github.com/model-relay/model-relay/services/dispatch"
	"github.com/model-relay/model-relay/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps dispatch errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	switch {
	case dispatch.IsAllExhausted(err):
		// Every provider was tried; the body carries the last upstream error
		if werr := utils.WriteBadGateway(w, err.Error(), nil); werr != nil {
			logger.Error("failed to write bad gateway response", zap.Error(werr))
		}

	case dispatch.IsConfiguration(err):
		logger.Error("dispatch configuration error", zap.Error(err))
		if werr := utils.WriteServiceUnavailable(w, err.Error()); werr != nil {
			logger.Error("failed to write service unavailable response", zap.Error(werr))
		}

	default:
		logger.Error("unhandled error type", zap.Error(err))
		if werr := utils.WriteInternalServerError(w, "An unexpected error occurred"); werr != nil {
			logger.Error("failed to write internal error response", zap.Error(werr))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if werr := utils.WriteBadRequest(w, "Validation failed", details); werr != nil {
			logger.Error("failed to write validation error response", zap.Error(werr))
		}
		return
	}

	if werr := utils.WriteBadRequest(w, err.Error(), nil); werr != nil {
		logger.Error("failed to write validation error response", zap.Error(werr))
	}
}
