package handlers

import (
	"net/http"

	"github.com/upb/agent-control-plane/services"
	"github.com/upb/agent-control-plane/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err), services.IsDuplicateError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case utils.IsValidationError(err):
		fields := make(map[string]interface{})
		for field, rule := range utils.GetValidationFields(err) {
			fields[field] = rule
		}
		writeErr = utils.WriteBadRequest(w, err.Error(), fields)

	case services.IsExternalError(err):
		// Upstream failures carry their cause to the caller
		logger.Warn("upstream error", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, message)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// badRequest writes a 400 with message and logs write failures
func badRequest(w http.ResponseWriter, message string, logger *zap.Logger) {
	if err := utils.WriteBadRequest(w, message, nil); err != nil {
		logger.Error("failed to write bad request response", zap.Error(err))
	}
}

// writeOK writes a 200 JSON body and logs write failures
func writeOK(w http.ResponseWriter, data interface{}, logger *zap.Logger) {
	if err := utils.WriteOK(w, data); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}
