package middleware

import (
	"medportal/internal/services"
	"medportal/internal/transport/httpdto"
	"medportal/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error when
// nothing has been written yet.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	log := logger.OrNop(l)
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := services.HTTPStatus(err)
		if status >= 500 {
			log.With(c.Request.Context()).Error("request error", zap.Error(err))
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), ErrorCode(status)))
	}
}

// ErrorCode is the machine readable code sent with an error status.
func ErrorCode(status int) string {
	switch status {
	case 400:
		return "INVALID_INPUT"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 409:
		return "CONFLICT"
	case 413:
		return "TOO_LARGE"
	case 429:
		return "RATE_LIMITED"
	case 502:
		return "UPSTREAM_FAILED"
	case 503:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
