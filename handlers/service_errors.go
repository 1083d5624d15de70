package handlers

import (
	"net/http"

	"github.com/upb/llm-job-gateway/services"
	"github.com/upb/llm-job-gateway/utils"
	"go.uber.org/zap"
)

// StatusForError maps an error kind to its HTTP status
func StatusForError(err error) int {
	switch services.KindOf(err) {
	case services.ErrorTypeMissingCredential, services.ErrorTypeInvalidCredential:
		return http.StatusUnauthorized
	case services.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case services.ErrorTypeBadRequest:
		return http.StatusBadRequest
	case services.ErrorTypeModelNotFound, services.ErrorTypeJobNotFound, services.ErrorTypeUnknownProvider:
		return http.StatusNotFound
	case services.ErrorTypeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError maps domain errors to HTTP responses. The body always
// carries the error kind and a readable message.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := StatusForError(err)
	kind := services.KindOf(err)
	message := services.Summary(err)

	if status == http.StatusInternalServerError {
		// Unclassified failures may carry internals
		logger.Error("internal server error", zap.Error(err))
		message = "An unexpected error occurred"
	} else {
		logger.Debug("handled service error",
			zap.String("type", string(kind)),
			zap.String("message", message),
			zap.Any("details", services.GetErrorDetails(err)))
	}

	if err := utils.WriteError(w, status, string(kind), message, services.GetErrorDetails(err)); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
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
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
