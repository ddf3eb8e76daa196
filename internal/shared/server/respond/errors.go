package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/apperr"
	"knowledge-hub/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if cause, ok := c.Get(causeKey); ok {
		fields["cause"] = cause
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

const causeKey = "errorCause"

// FromError maps a classified error onto the response envelope. Internal
// causes are attached to the log line only.
func FromError(c *gin.Context, err error, details interface{}) {
	if err == nil {
		return
	}
	c.Set(causeKey, err.Error())

	var dispatchErr *apperr.DispatchError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		Error(c, http.StatusBadRequest, "validation_error", apperr.PublicMessage(err, "invalid request"), details)
	case errors.Is(err, apperr.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, "unauthorized", apperr.PublicMessage(err, "missing or invalid token"), nil)
	case errors.Is(err, apperr.ErrNotFound):
		Error(c, http.StatusNotFound, "not_found", apperr.PublicMessage(err, "not found"), nil)
	case errors.Is(err, apperr.ErrConflict):
		Error(c, http.StatusConflict, "conflict", apperr.PublicMessage(err, "conflict"), details)
	case errors.Is(err, apperr.ErrStorage):
		Error(c, http.StatusBadGateway, "storage_error", "storage unavailable", details)
	case errors.As(err, &dispatchErr):
		Error(c, dispatchErr.HTTPStatus(), "processing_dispatch_failed", "AI service request failed", details)
	default:
		Error(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
