package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
)

type contextKey string

const (
	callerKey    contextKey = "caller"
	RequestIDKey contextKey = "request_id"
)

// HeaderRequestID is echoed back on every response
const HeaderRequestID = "X-Request-ID"

// V1AuthMiddleware authenticates internal callers by API key
func V1AuthMiddleware(authenticator auth.Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get(auth.HeaderAuthorization)
			if authHeader == "" {
				logger.Debug("Missing Authorization header")
				sendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			caller, err := authenticator.Authenticate(r.Context(), authHeader)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				sendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			logger.Debug("Caller authenticated", zap.String("caller", caller))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// V1RequestIDMiddleware tags each request with an ID, reusing a well-formed one
// supplied by an upstream proxy
func V1RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			w.Header().Set(HeaderRequestID, requestID)
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaller returns the authenticated caller name
func GetCaller(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey).(string)
	return caller, ok
}

// GetRequestID returns the request ID assigned by V1RequestIDMiddleware
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

func sendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, statusCode int) {
	errorCode := "INTERNAL_ERROR"
	switch err {
	case auth.ErrAuthenticationFailed:
		errorCode = "AUTHENTICATION_FAILED"
	case auth.ErrPermissionDenied:
		errorCode = "PERMISSION_DENIED"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"code":    errorCode,
		"message": err.Error(),
	}); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}

	logger.Info("Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}
