package apperrors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindPrecondition:
		return http.StatusPreconditionFailed
	case KindState, KindInvalidTransition:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// Respond writes err as a JSON error body and aborts the request.
// Infra errors are logged with their cause and rendered generically.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	status := HTTPStatus(err)
	body := gin.H{"error": string(KindOf(err))}

	var e *Error
	if errors.As(err, &e) && e.Kind != KindInfra {
		body["message"] = e.Message
		body["retryable"] = false
		if e.State != "" {
			body["state"] = e.State
		}
		if e.Action != "" {
			body["action"] = e.Action
		}
		if e.Field != "" {
			body["field"] = e.Field
		}
	} else {
		if logger != nil {
			logger.Error("Request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err))
		}
		body["message"] = "temporary failure, please retry"
		body["retryable"] = true
	}

	c.AbortWithStatusJSON(status, body)
}
