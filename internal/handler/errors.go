// Package handler provides HTTP handlers for API endpoints.
package handler

import (
	"medportal/internal/middleware"
	"medportal/internal/services"
	"medportal/internal/transport/httpdto"
	"medportal/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps a service error to its status and envelope.
func writeError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	if status >= 500 {
		logger.OrNop(logger.GetGlobalLogger()).With(c.Request.Context()).Error("request failed", zap.Error(err))
	}
	c.JSON(status, httpdto.NewErrorResponse(err.Error(), middleware.ErrorCode(status)))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(400, httpdto.NewErrorResponse(msg, "INVALID_REQUEST"))
}
