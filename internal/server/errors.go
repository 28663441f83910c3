package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	rerundomain "github.com/terralens/geosignal/internal/rerun/domain"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware renders the last collected error after the handler
// chain finishes, unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, anomalysetdomain.ErrUnauthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, anomalysetdomain.ErrNotFound),
		errors.Is(err, querydomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, anomalysetdomain.ErrVersionConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "version conflict",
		}
	case errors.Is(err, rerundomain.ErrRerunInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: rerundomain.ErrRerunInProgress.Error(),
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidRequest,
		anomalysetdomain.ErrInvalidUser,
		anomalysetdomain.ErrInvalidName,
		querydomain.ErrInvalidUser,
		signaldomain.ErrEmptyResult,
		usagedomain.ErrInvalidUser,
		usagedomain.ErrInvalidModel,
		usagedomain.ErrInvalidEndpoint,
		usagedomain.ErrInvalidTokens,
		usagedomain.ErrInvalidTimeframe,
		usagedomain.ErrInvalidGroupBy,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
