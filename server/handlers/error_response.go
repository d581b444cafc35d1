// Package handlers implements the lfsauth HTTP endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/core"
	"github.com/ebogdum/lfsauth/internal/pathutil"
	"github.com/ebogdum/lfsauth/metrics"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errBadRequest marks request validation failures
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// classify maps an error onto an HTTP status and error code
func classify(err error, defaultStatusCode int) (int, string) {
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "AUTHENTICATION_FAILED"
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, auth.ErrInvalidOperation):
		return http.StatusBadRequest, "INVALID_OPERATION"
	case errors.Is(err, auth.ErrDelimiterInField):
		return http.StatusBadRequest, "INVALID_FIELD"
	case errors.Is(err, backends.ErrInvalidObjectID):
		return http.StatusBadRequest, "INVALID_OBJECT_ID"
	case errors.Is(err, pathutil.ErrForbidden):
		return http.StatusBadRequest, "INVALID_PROJECT"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, backends.ErrRepositoryNotFound):
		return http.StatusNotFound, "REPOSITORY_NOT_FOUND"
	case errors.Is(err, backends.ErrObjectNotFound):
		return http.StatusNotFound, "OBJECT_NOT_FOUND"
	case errors.Is(err, core.ErrReadOnly):
		return http.StatusForbidden, "READ_ONLY"
	case errors.Is(err, core.ErrObjectTooLarge):
		return http.StatusUnprocessableEntity, "OBJECT_TOO_LARGE"
	case errors.Is(err, core.ErrLFSUnavailable):
		return http.StatusServiceUnavailable, "LFS_UNAVAILABLE"
	default:
		return defaultStatusCode, "INTERNAL_ERROR"
	}
}

// SendErrorResponse sends a standardized JSON error response
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	statusCode, errorCode := classify(err, defaultStatusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Code:    errorCode,
		Message: err.Error(),
	}
	if statusCode >= http.StatusInternalServerError && errorCode == "INTERNAL_ERROR" {
		response.Message = "internal error"
		metrics.ErrorsTotal.WithLabelValues("http", errorCode).Inc()
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}

	logger.Info("Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"code":"INTERNAL_ERROR","message":"failed to encode response"}`)
	}
}
